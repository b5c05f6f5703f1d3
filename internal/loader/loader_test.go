package loader

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Faultbox/stlviewer/internal/assets"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/internal/registry"
	"github.com/Faultbox/stlviewer/pkg/formats"
)

// binarySTL builds a binary STL file from triangles given as 9 floats each.
func binarySTL(tris ...[9]float32) []byte {
	data := make([]byte, 84+50*len(tris))
	copy(data, "loader test")
	binary.LittleEndian.PutUint32(data[80:], uint32(len(tris)))
	offset := 84
	for _, tri := range tris {
		offset += 12
		for _, f := range tri {
			binary.LittleEndian.PutUint32(data[offset:], math.Float32bits(f))
			offset += 4
		}
		offset += 2
	}
	return data
}

var wedge = binarySTL(
	[9]float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
	[9]float32{0, 0, 0, 0, 1, 0, 0, 0, 3},
)

func writeModels(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

type sourceFunc func(ctx context.Context, path string) ([]byte, error)

func (f sourceFunc) Load(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

func TestLoadBakesRestingPose(t *testing.T) {
	dir := writeModels(t, map[string][]byte{"wedge.stl": wedge})
	l := New(assets.NewManager(dir), DefaultOptions(), nil)

	res := l.Load(context.Background(), registry.AssetDescriptor{ID: "wedge", SourcePath: "wedge.stl"})
	if res.Failed() {
		t.Fatalf("Load failed: %v", res.Err)
	}
	if res.ID != "wedge" {
		t.Errorf("expected id wedge, got %s", res.ID)
	}

	mesh := res.Mesh
	if !mesh.Transform.IsIdentity() {
		t.Error("loaded mesh should have identity transform")
	}

	// Pre-bake bounds (0,0,0)-(1,1,3) rotated 270° about X then lifted by 2
	want := model.Bounds{Min: [3]float32{0, 2, -1}, Max: [3]float32{1, 5, 0}}
	if mesh.Bounds != want {
		t.Errorf("baked bounds = %+v, want %+v", mesh.Bounds, want)
	}
	if mesh.WorldBounds() != want {
		t.Errorf("world bounds = %+v, want %+v", mesh.WorldBounds(), want)
	}

	// Querying again after unrelated work yields the same answer
	mesh.Bake()
	if mesh.WorldBounds() != want {
		t.Errorf("world bounds drifted: %+v", mesh.WorldBounds())
	}
}

func TestLoadCustomPose(t *testing.T) {
	dir := writeModels(t, map[string][]byte{"wedge.stl": wedge})
	opts := Options{RestHeight: 0, RotateXDegrees: 0}
	l := New(assets.NewManager(dir), opts, nil)

	res := l.Load(context.Background(), registry.AssetDescriptor{ID: "wedge", SourcePath: "wedge.stl"})
	if res.Failed() {
		t.Fatalf("Load failed: %v", res.Err)
	}
	want := model.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{1, 1, 3}}
	if res.Mesh.Bounds != want {
		t.Errorf("bounds = %+v, want %+v", res.Mesh.Bounds, want)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := writeModels(t, map[string][]byte{
		"garbage.stl": []byte("this is not a mesh"),
		"cut.stl":     wedge[:len(wedge)-20],
		"flat.stl":    binarySTL([9]float32{0, 0, 0, 1, 1, 1, 2, 2, 2}),
	})
	l := New(assets.NewManager(dir), DefaultOptions(), nil)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"unreachable", "missing.stl", assets.ErrNotFound},
		{"not stl", "garbage.stl", formats.ErrNotSTL},
		{"truncated", "cut.stl", formats.ErrTruncatedSTLData},
		{"degenerate only", "flat.stl", ErrNoGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := l.Load(context.Background(), registry.AssetDescriptor{ID: tt.name, SourcePath: tt.path})
			if !res.Failed() {
				t.Fatal("expected load to fail")
			}
			if res.Mesh != nil {
				t.Error("failed load should carry no mesh")
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("error = %v, want %v", res.Err, tt.wantErr)
			}
			if res.Err.ID != tt.name || res.Err.Source != tt.path {
				t.Errorf("LoadError fields = %+v", res.Err)
			}
		})
	}
}

func TestLoadTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	// A source that ignores its context entirely
	src := sourceFunc(func(ctx context.Context, path string) ([]byte, error) {
		<-block
		return wedge, nil
	})

	l := New(src, Options{Timeout: 20 * time.Millisecond}, nil)

	done := make(chan Result, 1)
	go func() {
		done <- l.Load(context.Background(), registry.AssetDescriptor{ID: "slow", SourcePath: "slow.stl"})
	}()

	select {
	case res := <-done:
		if !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load did not resolve after its timeout")
	}
}

func TestLoadRecoversPanic(t *testing.T) {
	src := sourceFunc(func(ctx context.Context, path string) ([]byte, error) {
		panic("source exploded")
	})
	l := New(src, DefaultOptions(), nil)

	res := l.Load(context.Background(), registry.AssetDescriptor{ID: "p", SourcePath: "p.stl"})
	if !res.Failed() {
		t.Fatal("expected failure from panicking source")
	}
}

func TestLoadAllIsolatesFailures(t *testing.T) {
	dir := writeModels(t, map[string][]byte{
		"a.stl": wedge,
		"c.stl": wedge,
	})
	l := New(assets.NewManager(dir), DefaultOptions(), nil)

	descs := []registry.AssetDescriptor{
		{ID: "a", SourcePath: "a.stl"},
		{ID: "b", SourcePath: "b.stl"},
		{ID: "c", SourcePath: "c.stl"},
	}

	got := make(map[string]Result)
	for res := range LoadAll(context.Background(), l, descs) {
		if _, dup := got[res.ID]; dup {
			t.Errorf("duplicate result for %s", res.ID)
		}
		got[res.ID] = res
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got["a"].Failed() || got["c"].Failed() {
		t.Error("a and c should load")
	}
	if !got["b"].Failed() {
		t.Error("b should fail")
	}
}

type echoLoader struct{}

func (echoLoader) Load(ctx context.Context, desc registry.AssetDescriptor) Result {
	return Result{ID: desc.ID, Err: &LoadError{ID: desc.ID, Source: desc.SourcePath, Cause: ErrNoGeometry}}
}

func TestLoadAllAnyLoader(t *testing.T) {
	descs := []registry.AssetDescriptor{
		{ID: "x", SourcePath: "x.stl"},
		{ID: "y", SourcePath: "y.stl"},
	}

	n := 0
	for res := range LoadAll(context.Background(), echoLoader{}, descs) {
		if !errors.Is(res.Err, ErrNoGeometry) {
			t.Errorf("%s: expected ErrNoGeometry, got %v", res.ID, res.Err)
		}
		n++
	}
	if n != len(descs) {
		t.Errorf("expected %d results, got %d", len(descs), n)
	}

	if _, open := <-LoadAll(context.Background(), echoLoader{}, nil); open {
		t.Error("expected closed channel for no descriptors")
	}
}

func TestLoadErrorMessage(t *testing.T) {
	err := &LoadError{ID: "half", Source: "models/half.stl", Cause: assets.ErrNotFound}
	want := `loading model "half" from models/half.stl: asset not found`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
