// Package server exposes the viewer state to a browser front-end over HTTP
// and a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/stlviewer/internal/config"
	"github.com/Faultbox/stlviewer/internal/engine/debug"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/internal/engine/scene"
	"github.com/Faultbox/stlviewer/internal/viewer"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves the model list, selection and baked meshes.
type Server struct {
	mgr      *viewer.Manager
	graph    *scene.Graph
	view     config.ViewConfig
	log      *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server for mgr, which drives graph. A nil logger discards
// output.
func New(mgr *viewer.Manager, graph *scene.Graph, view config.ViewConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		mgr:      mgr,
		graph:    graph,
		view:     view,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // front-end may be served from a dev server
			},
		},
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("POST /api/models/{id}/select", s.handleSelect)
	s.mux.HandleFunc("GET /api/models/{id}/mesh", s.handleMesh)
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("GET /api/scene", s.handleScene)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StateMessage is the model list sent to clients.
type StateMessage struct {
	Type    string               `json:"type"`
	Active  string               `json:"active,omitempty"`
	Changed *bool                `json:"changed,omitempty"`
	Models  []viewer.ModelStatus `json:"models"`
}

func (s *Server) state(msgType string) StateMessage {
	active, _ := s.mgr.ActiveID()
	return StateMessage{
		Type:   msgType,
		Active: active,
		Models: s.mgr.Snapshot(),
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state("state"))
}

// handleSelect answers 200 even when the selection is ignored; the body
// reports whether anything changed.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	changed := s.mgr.SelectModel(r.PathValue("id"))
	msg := s.state("state")
	msg.Changed = &changed
	s.writeJSON(w, http.StatusOK, msg)
}

// MeshMessage carries baked geometry as flat arrays.
type MeshMessage struct {
	ID        string       `json:"id"`
	Positions []float32    `json:"positions"`
	Normals   []float32    `json:"normals"`
	Indices   []uint32     `json:"indices"`
	Bounds    model.Bounds `json:"bounds"`
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mesh, ok := s.mgr.Mesh(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "model not loaded"})
		return
	}

	msg := MeshMessage{
		ID:        id,
		Positions: make([]float32, 0, len(mesh.Vertices)*3),
		Normals:   make([]float32, 0, len(mesh.Vertices)*3),
		Indices:   mesh.Indices,
		Bounds:    mesh.Bounds,
	}
	for _, v := range mesh.Vertices {
		msg.Positions = append(msg.Positions, v.Position[:]...)
		msg.Normals = append(msg.Normals, v.Normal[:]...)
	}
	s.writeJSON(w, http.StatusOK, msg)
}

// ViewMessage describes the camera, lights and reference grid.
type ViewMessage struct {
	Camera   config.ViewConfig `json:"camera"`
	Lighting scene.Lighting    `json:"lighting"`
	Grid     *GridMessage      `json:"grid,omitempty"`
}

// GridMessage is the reference grid plus its line segments, two vertices
// per segment, as flat position and color arrays.
type GridMessage struct {
	debug.Grid
	Positions []float32 `json:"positions"`
	Colors    []float32 `json:"colors"`
}

func newGridMessage(g debug.Grid) *GridMessage {
	lines := g.Lines()
	msg := &GridMessage{
		Grid:      g,
		Positions: make([]float32, 0, len(lines)*3),
		Colors:    make([]float32, 0, len(lines)*3),
	}
	for _, v := range lines {
		msg.Positions = append(msg.Positions, v.X, v.Y, v.Z)
		msg.Colors = append(msg.Colors, v.R, v.G, v.B)
	}
	return msg
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	msg := ViewMessage{Camera: s.view, Lighting: s.graph.Lighting}
	if g, ok := s.mgr.Grid(); ok {
		msg.Grid = newGridMessage(g)
	}
	s.writeJSON(w, http.StatusOK, msg)
}

// SceneMessage lists every object in the scene graph.
type SceneMessage struct {
	VisibleModels int                `json:"visible_models"`
	Objects       []scene.ObjectInfo `json:"objects"`
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SceneMessage{
		VisibleModels: s.graph.VisibleCount(scene.KindModel),
		Objects:       s.graph.Objects(),
	})
}

// clientMessage is what the browser sends over the websocket.
type clientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.mgr.Subscribe()
	defer unsubscribe()

	s.log.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	if err := s.send(conn, s.state("state")); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "select":
				s.mgr.SelectModel(msg.ID)
			default:
				s.log.Debug("ignoring websocket message", zap.String("type", msg.Type))
			}
		}
	}()

	for {
		select {
		case <-changes:
			if err := s.send(conn, s.state("state")); err != nil {
				return
			}
		case <-done:
			s.log.Debug("websocket client disconnected", zap.String("remote", r.RemoteAddr))
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("http response write failed", zap.Int("status", status), zap.Error(err))
	}
}
