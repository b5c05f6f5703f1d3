// Package loader fetches STL assets, builds meshes and bakes them into their
// resting pose.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/stlviewer/internal/config"
	"github.com/Faultbox/stlviewer/internal/engine/model"
	"github.com/Faultbox/stlviewer/internal/registry"
	"github.com/Faultbox/stlviewer/pkg/formats"
)

// ErrNoGeometry is the cause when a file parses but has no usable triangles.
var ErrNoGeometry = errors.New("model has no usable triangles")

// LoadError reports why one asset could not be loaded.
type LoadError struct {
	ID     string
	Source string
	Cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading model %q from %s: %v", e.ID, e.Source, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Result is the outcome of one load. Exactly one of Mesh and Err is set.
type Result struct {
	ID   string
	Mesh *model.Mesh
	Err  *LoadError
}

// Failed reports whether the load produced an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Source provides raw asset bytes.
type Source interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// Options controls normalization and timeouts.
type Options struct {
	Timeout        time.Duration // 0 disables
	RestHeight     float32
	RotateXDegrees float32
	SmoothNormals  bool
}

// DefaultOptions matches the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig extracts loader options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:        cfg.Loader.Timeout,
		RestHeight:     cfg.Normalize.RestHeight,
		RotateXDegrees: cfg.Normalize.RotateXDegrees,
		SmoothNormals:  cfg.Loader.SmoothNormals,
	}
}

// Loader turns asset descriptors into baked meshes.
type Loader struct {
	src  Source
	opts Options
	log  *zap.Logger
}

// New creates a loader reading from src. A nil logger discards output.
func New(src Source, opts Options, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{src: src, opts: opts, log: log}
}

// Load fetches, parses and bakes one model. It always returns; every
// failure, including a panic in the parser, is reported through Result.Err.
func (l *Loader) Load(ctx context.Context, desc registry.AssetDescriptor) (res Result) {
	res.ID = desc.ID
	start := time.Now()

	fail := func(cause error) Result {
		return Result{ID: desc.ID, Err: &LoadError{ID: desc.ID, Source: desc.SourcePath, Cause: cause}}
	}

	defer func() {
		if r := recover(); r != nil {
			res = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	data, err := l.fetch(ctx, desc.SourcePath)
	if err != nil {
		return fail(err)
	}

	stl, err := formats.ParseSTL(data)
	if err != nil {
		return fail(err)
	}

	mesh := model.BuildMesh(stl, model.BuildOptions{SmoothNormals: l.opts.SmoothNormals})
	if mesh == nil {
		return fail(ErrNoGeometry)
	}

	mesh.SetTransform(model.RestingPose(l.opts.RestHeight, l.opts.RotateXDegrees))
	mesh.Bake()

	l.log.Debug("model loaded",
		zap.String("model", desc.ID),
		zap.Int("triangles", mesh.TriangleCount()),
		zap.Float32s("min", mesh.Bounds.Min[:]),
		zap.Float32s("max", mesh.Bounds.Max[:]),
		zap.Duration("elapsed", time.Since(start)))

	return Result{ID: desc.ID, Mesh: mesh}
}

type fetchResult struct {
	data []byte
	err  error
}

// fetch runs the source read so that a source ignoring ctx still cannot
// hold the load past its deadline.
func (l *Loader) fetch(ctx context.Context, path string) ([]byte, error) {
	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		data, err := l.src.Load(ctx, path)
		ch <- fetchResult{data: data, err: err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ModelLoader loads one asset and always returns. *Loader implements it.
type ModelLoader interface {
	Load(ctx context.Context, desc registry.AssetDescriptor) Result
}

// LoadAll starts one load per descriptor on ld and delivers results in
// completion order. The channel is closed once every load has settled.
func LoadAll(ctx context.Context, ld ModelLoader, descs []registry.AssetDescriptor) <-chan Result {
	out := make(chan Result, len(descs))

	var wg sync.WaitGroup
	for _, d := range descs {
		wg.Add(1)
		go func(d registry.AssetDescriptor) {
			defer wg.Done()
			out <- ld.Load(ctx, d)
		}(d)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
