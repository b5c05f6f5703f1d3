// Package scene provides the scene graph that loaded models are placed into.
// The viewer front-end draws whatever this graph holds; only the visibility
// manager mutates it.
package scene

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Faultbox/stlviewer/internal/engine/debug"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/pkg/math"
)

// Kind identifies what an object draws.
type Kind int

const (
	KindModel Kind = iota // Baked STL mesh
	KindGrid              // Reference grid
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind name for JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Object is a handle to something placed in the scene.
// Mesh and Grid are immutable once the object has been added.
type Object struct {
	ID        uuid.UUID
	Name      string
	Kind      Kind
	Mesh      *model.Mesh
	Grid      *debug.Grid
	Transform math.Mat4
}

// NewModelObject wraps a baked mesh in a fresh scene object.
func NewModelObject(name string, mesh *model.Mesh) *Object {
	return &Object{
		ID:        uuid.New(),
		Name:      name,
		Kind:      KindModel,
		Mesh:      mesh,
		Transform: math.Identity(),
	}
}

// NewGridObject wraps a reference grid in a fresh scene object.
func NewGridObject(name string, grid debug.Grid) *Object {
	return &Object{
		ID:        uuid.New(),
		Name:      name,
		Kind:      KindGrid,
		Grid:      &grid,
		Transform: math.Identity(),
	}
}

// Sink is the capability surface the visibility manager drives.
type Sink interface {
	AddObject(obj *Object)
	RemoveObject(obj *Object)
	SetVisible(obj *Object, visible bool)
	ComputeBoundingBox(obj *Object) model.Bounds
}

// ObjectInfo is a point-in-time view of one object.
type ObjectInfo struct {
	ID      uuid.UUID    `json:"id"`
	Name    string       `json:"name"`
	Kind    Kind         `json:"kind"`
	Visible bool         `json:"visible"`
	Bounds  model.Bounds `json:"bounds"`
}

type entry struct {
	obj     *Object
	visible bool
}

// Lighting describes the fixed scene lights.
type Lighting struct {
	DirectionalColor     [3]float32 `json:"directional_color"`
	DirectionalIntensity float32    `json:"directional_intensity"`
	DirectionalPosition  [3]float32 `json:"directional_position"`
	AmbientColor         [3]float32 `json:"ambient_color"`
}

// DefaultLighting returns a white key light at (5,5,5) with a dim grey ambient.
func DefaultLighting() Lighting {
	return Lighting{
		DirectionalColor:     [3]float32{1, 1, 1},
		DirectionalIntensity: 0.5,
		DirectionalPosition:  [3]float32{5, 5, 5},
		AmbientColor:         [3]float32{0x40 / 255.0, 0x40 / 255.0, 0x40 / 255.0},
	}
}

// Graph is an in-memory scene graph. It is safe for concurrent use.
type Graph struct {
	Lighting Lighting

	mu      sync.RWMutex
	order   []uuid.UUID
	entries map[uuid.UUID]*entry
}

// New creates an empty scene graph.
func New() *Graph {
	return &Graph{
		Lighting: DefaultLighting(),
		entries:  make(map[uuid.UUID]*entry),
	}
}

// AddObject inserts obj hidden. Adding the same object twice is a no-op.
func (g *Graph) AddObject(obj *Object) {
	if obj == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[obj.ID]; ok {
		return
	}
	g.entries[obj.ID] = &entry{obj: obj}
	g.order = append(g.order, obj.ID)
}

// RemoveObject drops obj from the graph if present.
func (g *Graph) RemoveObject(obj *Object) {
	if obj == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[obj.ID]; !ok {
		return
	}
	delete(g.entries, obj.ID)
	for i, id := range g.order {
		if id == obj.ID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// SetVisible toggles obj. Unknown objects are ignored.
func (g *Graph) SetVisible(obj *Object, visible bool) {
	if obj == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[obj.ID]; ok {
		e.visible = visible
	}
}

// ComputeBoundingBox returns the world-space bounds of obj.
func (g *Graph) ComputeBoundingBox(obj *Object) model.Bounds {
	if obj == nil {
		return model.Bounds{}
	}
	switch obj.Kind {
	case KindModel:
		if obj.Mesh == nil {
			return model.Bounds{}
		}
		return obj.Mesh.WorldBounds().Transform(obj.Transform)
	case KindGrid:
		if obj.Grid == nil {
			return model.Bounds{}
		}
		return obj.Grid.Bounds().Transform(obj.Transform)
	}
	return model.Bounds{}
}

// Objects returns all objects in insertion order.
func (g *Graph) Objects() []ObjectInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ObjectInfo, 0, len(g.order))
	for _, id := range g.order {
		e := g.entries[id]
		out = append(out, ObjectInfo{
			ID:      e.obj.ID,
			Name:    e.obj.Name,
			Kind:    e.obj.Kind,
			Visible: e.visible,
			Bounds:  g.ComputeBoundingBox(e.obj),
		})
	}
	return out
}

// VisibleCount returns how many objects of the given kind are visible.
func (g *Graph) VisibleCount(kind Kind) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, e := range g.entries {
		if e.visible && e.obj.Kind == kind {
			n++
		}
	}
	return n
}
