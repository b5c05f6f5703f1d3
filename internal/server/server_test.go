package server

import (
	"context"
	"encoding/json"
	"errors"
	stdmath "math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/stlviewer/internal/config"
	"github.com/Faultbox/stlviewer/internal/engine/debug"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/internal/engine/scene"
	"github.com/Faultbox/stlviewer/internal/loader"
	"github.com/Faultbox/stlviewer/internal/registry"
	"github.com/Faultbox/stlviewer/internal/viewer"
	"github.com/Faultbox/stlviewer/pkg/math"
)

type loaderFunc func(ctx context.Context, desc registry.AssetDescriptor) loader.Result

func (f loaderFunc) Load(ctx context.Context, desc registry.AssetDescriptor) loader.Result {
	return f(ctx, desc)
}

func triangleMesh() *model.Mesh {
	return &model.Mesh{
		Vertices: []model.Vertex{
			{Position: [3]float32{0, 2, 0}, Normal: [3]float32{0, 1, 0}},
			{Position: [3]float32{1, 2, 0}, Normal: [3]float32{0, 1, 0}},
			{Position: [3]float32{0, 2, -1}, Normal: [3]float32{0, 1, 0}},
		},
		Indices:   []uint32{0, 1, 2},
		Bounds:    model.Bounds{Min: [3]float32{0, 2, -1}, Max: [3]float32{1, 2, 0}},
		Transform: math.Identity(),
	}
}

// newTestServer loads a, b (ok) and broken (failed).
func newTestServer(t *testing.T) (*httptest.Server, *viewer.Manager) {
	ts, mgr, _ := newTestServerWithGraph(t)
	return ts, mgr
}

func newTestServerWithGraph(t *testing.T) (*httptest.Server, *viewer.Manager, *scene.Graph) {
	t.Helper()

	reg, err := registry.New([]registry.AssetDescriptor{
		{ID: "a", SourcePath: "a.stl", Label: "Part A"},
		{ID: "b", SourcePath: "b.stl"},
		{ID: "broken", SourcePath: "broken.stl"},
	})
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}

	ld := loaderFunc(func(ctx context.Context, desc registry.AssetDescriptor) loader.Result {
		if desc.ID == "broken" {
			return loader.Result{ID: desc.ID, Err: &loader.LoadError{ID: desc.ID, Source: desc.SourcePath, Cause: errors.New("bad")}}
		}
		return loader.Result{ID: desc.ID, Mesh: triangleMesh()}
	})

	graph := scene.New()
	mgr := viewer.New(reg, ld, graph, viewer.Options{Grid: true, GridHeight: 5}, nil)
	mgr.Start(context.Background())
	mgr.Wait()

	srv := New(mgr, graph, config.Default().View, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mgr, graph
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestModels(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET /api/models failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	msg := decode[struct {
		Active string `json:"active"`
		Models []struct {
			ID      string `json:"id"`
			Label   string `json:"label"`
			State   string `json:"state"`
			Visible bool   `json:"visible"`
			Error   string `json:"error"`
		} `json:"models"`
	}](t, resp)

	if msg.Active != "a" {
		t.Errorf("expected active a, got %q", msg.Active)
	}
	if len(msg.Models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(msg.Models))
	}
	if msg.Models[0].Label != "Part A" || msg.Models[0].State != "visible" {
		t.Errorf("unexpected first model: %+v", msg.Models[0])
	}
	if msg.Models[1].State != "hidden" {
		t.Errorf("expected b hidden, got %s", msg.Models[1].State)
	}
	if msg.Models[2].State != "failed" || msg.Models[2].Error == "" {
		t.Errorf("expected broken failed with error, got %+v", msg.Models[2])
	}
}

func TestSelect(t *testing.T) {
	ts, mgr := newTestServer(t)

	tests := []struct {
		id          string
		wantChanged bool
		wantActive  string
	}{
		{"b", true, "b"},
		{"b", false, "b"},
		{"broken", false, "b"},
		{"unknown", false, "b"},
		{"a", true, "a"},
	}

	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/api/models/"+tt.id+"/select", "application/json", nil)
		if err != nil {
			t.Fatalf("POST select %s failed: %v", tt.id, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("select %s: expected 200, got %d", tt.id, resp.StatusCode)
		}
		msg := decode[StateMessage](t, resp)
		if msg.Changed == nil || *msg.Changed != tt.wantChanged {
			t.Errorf("select %s: changed = %v, want %v", tt.id, msg.Changed, tt.wantChanged)
		}
		if msg.Active != tt.wantActive {
			t.Errorf("select %s: active = %s, want %s", tt.id, msg.Active, tt.wantActive)
		}
	}

	if id, _ := mgr.ActiveID(); id != "a" {
		t.Errorf("expected manager active a, got %s", id)
	}
}

func TestMesh(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/models/b/mesh")
	if err != nil {
		t.Fatalf("GET mesh failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	msg := decode[MeshMessage](t, resp)
	if len(msg.Positions) != 9 || len(msg.Normals) != 9 || len(msg.Indices) != 3 {
		t.Errorf("unexpected mesh sizes: %d positions, %d normals, %d indices",
			len(msg.Positions), len(msg.Normals), len(msg.Indices))
	}
	if msg.Bounds.Min != [3]float32{0, 2, -1} {
		t.Errorf("unexpected bounds %+v", msg.Bounds)
	}

	for _, id := range []string{"broken", "unknown"} {
		resp, err := http.Get(ts.URL + "/api/models/" + id + "/mesh")
		if err != nil {
			t.Fatalf("GET mesh %s failed: %v", id, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("mesh %s: expected 404, got %d", id, resp.StatusCode)
		}
	}
}

func TestView(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/view")
	if err != nil {
		t.Fatalf("GET /api/view failed: %v", err)
	}
	msg := decode[ViewMessage](t, resp)

	if msg.Camera.CameraPosition != [3]float32{100, 100, 10} {
		t.Errorf("unexpected camera position %v", msg.Camera.CameraPosition)
	}
	if msg.Lighting.DirectionalIntensity != 0.5 {
		t.Errorf("unexpected light intensity %v", msg.Lighting.DirectionalIntensity)
	}
	if msg.Grid == nil {
		t.Fatal("expected grid in view")
	}
	if msg.Grid.Center[1] != 5 {
		t.Errorf("expected grid at height 5, got %v", msg.Grid.Center)
	}

	// 11 lines each way, two vertices per line
	wantFloats := (msg.Grid.Divisions + 1) * 4 * 3
	if msg.Grid.Divisions != debug.DefaultGridDivisions {
		t.Errorf("expected %d divisions, got %d", debug.DefaultGridDivisions, msg.Grid.Divisions)
	}
	if len(msg.Grid.Positions) != wantFloats || len(msg.Grid.Colors) != wantFloats {
		t.Fatalf("expected %d grid floats, got %d positions and %d colors",
			wantFloats, len(msg.Grid.Positions), len(msg.Grid.Colors))
	}
	for i := 1; i < len(msg.Grid.Positions); i += 3 {
		if msg.Grid.Positions[i] != 5 {
			t.Fatalf("grid vertex %d at height %v, want 5", i/3, msg.Grid.Positions[i])
		}
	}
	if msg.Grid.Colors[0] != debug.GridColor[0] {
		t.Errorf("grid color = %v, want %v", msg.Grid.Colors[0], debug.GridColor[0])
	}
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &Server{log: zap.New(core)}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]float64{"bad": stdmath.NaN()})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	entries := logs.FilterMessage("http response write failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged encode failure, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["error"]; !ok {
		t.Error("expected error field on log entry")
	}
}

func TestWebSocket(t *testing.T) {
	ts, mgr := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	var msg StateMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read initial state: %v", err)
	}
	if msg.Type != "state" || msg.Active != "a" || len(msg.Models) != 3 {
		t.Errorf("unexpected initial state: %+v", msg)
	}

	if err := conn.WriteJSON(clientMessage{Type: "select", ID: "b"}); err != nil {
		t.Fatalf("failed to send select: %v", err)
	}

	for msg.Active != "b" {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("did not receive state update: %v", err)
		}
	}

	if id, _ := mgr.ActiveID(); id != "b" {
		t.Errorf("expected manager active b, got %s", id)
	}
}

func TestScene(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/scene")
	if err != nil {
		t.Fatalf("GET /api/scene failed: %v", err)
	}
	msg := decode[struct {
		VisibleModels int `json:"visible_models"`
		Objects       []struct {
			Name    string       `json:"name"`
			Kind    string       `json:"kind"`
			Visible bool         `json:"visible"`
			Bounds  model.Bounds `json:"bounds"`
		} `json:"objects"`
	}](t, resp)

	if msg.VisibleModels != 1 {
		t.Errorf("expected 1 visible model, got %d", msg.VisibleModels)
	}

	// a and b are models; broken never reaches the scene
	kinds := make(map[string]int)
	for _, o := range msg.Objects {
		kinds[o.Kind]++
		if o.Name == "a" && !o.Visible {
			t.Error("expected a visible")
		}
		if o.Name == "broken" {
			t.Error("failed model should not be in the scene")
		}
	}
	if kinds["model"] != 2 || kinds["grid"] != 1 {
		t.Errorf("unexpected object kinds: %v", kinds)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	_, mgr, graph := newTestServerWithGraph(t)
	srv := New(mgr, graph, config.Default().View, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
