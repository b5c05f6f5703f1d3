// Package registry holds the fixed, ordered list of models the viewer offers.
package registry

import (
	"errors"
	"fmt"

	"github.com/Faultbox/stlviewer/internal/config"
)

// Registry errors.
var (
	ErrEmptyID      = errors.New("model id is empty")
	ErrEmptySource  = errors.New("model source path is empty")
	ErrDuplicateID  = errors.New("duplicate model id")
	ErrNoDescriptor = errors.New("registry has no models")
)

// AssetDescriptor names one loadable mesh resource.
type AssetDescriptor struct {
	ID         string
	SourcePath string
	Label      string
}

// Registry is an immutable, ordered set of descriptors.
type Registry struct {
	descs []AssetDescriptor
}

// New validates descs and builds a registry preserving their order.
func New(descs []AssetDescriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, ErrNoDescriptor
	}

	r := &Registry{descs: make([]AssetDescriptor, 0, len(descs))}
	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if d.ID == "" {
			return nil, fmt.Errorf("model %d: %w", i, ErrEmptyID)
		}
		if d.SourcePath == "" {
			return nil, fmt.Errorf("model %q: %w", d.ID, ErrEmptySource)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("model %q: %w", d.ID, ErrDuplicateID)
		}
		if d.Label == "" {
			d.Label = d.ID
		}
		seen[d.ID] = true
		r.descs = append(r.descs, d)
	}
	return r, nil
}

// FromConfig builds a registry from the configured model list.
func FromConfig(models []config.ModelConfig) (*Registry, error) {
	descs := make([]AssetDescriptor, len(models))
	for i, m := range models {
		descs[i] = AssetDescriptor{ID: m.ID, SourcePath: m.Path, Label: m.Label}
	}
	return New(descs)
}

// List returns the descriptors in display order.
func (r *Registry) List() []AssetDescriptor {
	out := make([]AssetDescriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

// Default returns the model shown first.
func (r *Registry) Default() AssetDescriptor {
	return r.descs[0]
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.descs)
}
