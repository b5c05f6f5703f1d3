// Package viewer owns the set of loaded models and decides which one is shown.
package viewer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/stlviewer/internal/config"
	"github.com/Faultbox/stlviewer/internal/engine/debug"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/internal/engine/scene"
	"github.com/Faultbox/stlviewer/internal/loader"
	"github.com/Faultbox/stlviewer/internal/registry"
)

// Options controls the reference grid.
type Options struct {
	Grid          bool
	GridHeight    float32
	GridDivisions int
}

// OptionsFromConfig extracts manager options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Grid:          cfg.Grid.Enabled,
		GridHeight:    cfg.Grid.Height,
		GridDivisions: cfg.Grid.Divisions,
	}
}

type entry struct {
	desc  registry.AssetDescriptor
	state State
	obj   *scene.Object
	err   error
}

// Manager tracks every registered model and keeps at most one visible.
//
// Selecting a model that has not finished loading is rejected rather than
// queued; the front-end only offers models that report ready.
type Manager struct {
	reg    *registry.Registry
	loader loader.ModelLoader
	sink   scene.Sink
	opts   Options
	log    *zap.Logger

	mu       sync.Mutex
	models   map[string]*entry
	activeID string
	grid     *scene.Object
	started  bool
	subs     map[int]chan struct{}
	nextSub  int

	wg sync.WaitGroup
}

// New creates a manager with every registered model unloaded.
// A nil logger discards output.
func New(reg *registry.Registry, ld loader.ModelLoader, sink scene.Sink, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		reg:    reg,
		loader: ld,
		sink:   sink,
		opts:   opts,
		log:    log,
		models: make(map[string]*entry, reg.Len()),
		subs:   make(map[int]chan struct{}),
	}
	for _, d := range reg.List() {
		m.models[d.ID] = &entry{desc: d, state: StateUnloaded}
	}
	return m
}

// Start issues one load per registered model. Loads run concurrently and
// complete in any order. Calling Start again does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true

	descs := m.reg.List()
	for _, d := range descs {
		m.models[d.ID].state = StateLoading
	}
	m.mu.Unlock()
	m.notify()

	m.log.Info("loading models", zap.Int("count", len(descs)))
	results := loader.LoadAll(ctx, m.loader, descs)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for res := range results {
			m.complete(res)
		}
	}()
}

// Wait blocks until every load issued by Start has settled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// complete applies one load result.
func (m *Manager) complete(res loader.Result) {
	m.mu.Lock()
	e, ok := m.models[res.ID]
	if !ok || e.state != StateLoading {
		m.mu.Unlock()
		return
	}

	if res.Failed() || res.Mesh == nil {
		var err error = loader.ErrNoGeometry
		if res.Err != nil {
			err = res.Err
		}
		e.state = StateFailed
		e.err = err
		m.mu.Unlock()

		m.log.Error("model load failed", zap.String("model", res.ID), zap.Error(err))
		m.notify()
		return
	}

	e.obj = scene.NewModelObject(e.desc.ID, res.Mesh)
	m.sink.AddObject(e.obj)
	m.sink.SetVisible(e.obj, false)
	e.state = StateHidden

	if e.desc.ID == m.reg.Default().ID && m.activeID == "" {
		m.show(e)
	}
	state := e.state
	m.mu.Unlock()

	m.log.Info("model ready", zap.String("model", res.ID), zap.Stringer("state", state))
	m.notify()
}

// SelectModel makes id the visible model. It reports whether anything
// changed; unknown, loading, failed or already visible ids are ignored.
func (m *Manager) SelectModel(id string) bool {
	m.mu.Lock()
	e, ok := m.models[id]
	if !ok {
		m.mu.Unlock()
		m.log.Debug("ignoring selection of unknown model", zap.String("model", id))
		return false
	}
	if st := e.state; st != StateHidden {
		m.mu.Unlock()
		m.log.Debug("ignoring selection", zap.String("model", id), zap.Stringer("state", st))
		return false
	}
	m.show(e)
	m.mu.Unlock()

	m.log.Info("model selected", zap.String("model", id))
	m.notify()
	return true
}

// show hides the active model and reveals e. Caller holds m.mu.
func (m *Manager) show(e *entry) {
	if prev, ok := m.models[m.activeID]; ok && prev != e {
		m.sink.SetVisible(prev.obj, false)
		prev.state = StateHidden
	}
	m.sink.SetVisible(e.obj, true)
	e.state = StateVisible
	m.activeID = e.desc.ID
	m.updateGrid(e)
}

// updateGrid replaces the reference grid with one sized to e. Caller holds m.mu.
func (m *Manager) updateGrid(e *entry) {
	if !m.opts.Grid {
		return
	}
	if m.grid != nil {
		m.sink.RemoveObject(m.grid)
		m.grid = nil
	}

	bounds := m.sink.ComputeBoundingBox(e.obj)
	g := debug.GridForBounds(bounds, m.opts.GridDivisions, m.opts.GridHeight)
	m.grid = scene.NewGridObject("grid", g)
	m.sink.AddObject(m.grid)
	m.sink.SetVisible(m.grid, true)
}

// State returns the state of id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.models[id]
	if !ok {
		return StateUnloaded, false
	}
	return e.state, true
}

// ActiveID returns the visible model, if any.
func (m *Manager) ActiveID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.activeID != ""
}

// Mesh returns the baked mesh of a loaded model.
func (m *Manager) Mesh(id string) (*model.Mesh, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.models[id]
	if !ok || !e.state.Ready() {
		return nil, false
	}
	return e.obj.Mesh, true
}

// Grid returns the current reference grid, if any.
func (m *Manager) Grid() (debug.Grid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grid == nil || m.grid.Grid == nil {
		return debug.Grid{}, false
	}
	return *m.grid.Grid, true
}

// Snapshot returns every model in registry order.
func (m *Manager) Snapshot() []ModelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ModelStatus, 0, len(m.models))
	for _, d := range m.reg.List() {
		e := m.models[d.ID]
		st := ModelStatus{
			ID:      d.ID,
			Label:   d.Label,
			State:   e.state,
			Visible: e.state == StateVisible,
		}
		if e.err != nil {
			st.Error = e.err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce; call Snapshot to read the new state. The
// returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
