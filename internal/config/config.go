// Package config handles viewer configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all viewer settings.
type Config struct {
	Models    []ModelConfig   `yaml:"models"`
	Assets    AssetsConfig    `yaml:"assets"`
	Loader    LoaderConfig    `yaml:"loader"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Grid      GridConfig      `yaml:"grid"`
	View      ViewConfig      `yaml:"view"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelConfig names one selectable STL model. The first entry is shown
// by default.
type ModelConfig struct {
	ID    string `yaml:"id"`
	Path  string `yaml:"path"`            // File path (relative to assets.base_dir) or http(s) URL
	Label string `yaml:"label,omitempty"` // Button text, defaults to ID
}

// AssetsConfig holds where model files are read from.
type AssetsConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// LoaderConfig holds model loading settings.
type LoaderConfig struct {
	Timeout       time.Duration `yaml:"timeout"` // Per-model; 0 disables
	SmoothNormals bool          `yaml:"smooth_normals"`
}

// NormalizeConfig holds the resting pose baked into every model.
type NormalizeConfig struct {
	RestHeight     float32 `yaml:"rest_height"`
	RotateXDegrees float32 `yaml:"rotate_x_degrees"`
}

// GridConfig holds reference grid settings.
type GridConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Height    float32 `yaml:"height"`
	Divisions int     `yaml:"divisions"`
}

// ViewConfig holds the initial camera handed to the front-end.
type ViewConfig struct {
	CameraPosition [3]float32 `yaml:"camera_position" json:"position"`
	CameraTarget   [3]float32 `yaml:"camera_target" json:"target"`
	FOV            float32    `yaml:"fov" json:"fov"`
	Near           float32    `yaml:"near" json:"near"`
	Far            float32    `yaml:"far" json:"far"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Models: []ModelConfig{
			{ID: "qutub1minar", Path: "models/qutub1minar.stl", Label: "Qutub Minar"},
			{ID: "frustum", Path: "models/frustumqutubminar.stl", Label: "Frustum Qutub Minar"},
			{ID: "half", Path: "models/halfqutubminar.stl", Label: "Half Qutub Minar"},
		},
		Assets: AssetsConfig{
			BaseDir: ".",
		},
		Loader: LoaderConfig{
			Timeout:       30 * time.Second,
			SmoothNormals: false,
		},
		Normalize: NormalizeConfig{
			RestHeight:     2,
			RotateXDegrees: 270,
		},
		Grid: GridConfig{
			Enabled:   true,
			Height:    5,
			Divisions: 10,
		},
		View: ViewConfig{
			CameraPosition: [3]float32{100, 100, 10},
			CameraTarget:   [3]float32{0, 0, 0},
			FOV:            75,
			Near:           0.1,
			Far:            1000,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks settings that cannot be corrected at runtime.
// Model list problems are reported by the registry.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("no models configured"))
	}
	if c.Loader.Timeout < 0 {
		errs = append(errs, fmt.Errorf("loader.timeout must not be negative, got %v", c.Loader.Timeout))
	}
	if c.Grid.Divisions < 0 {
		errs = append(errs, fmt.Errorf("grid.divisions must not be negative, got %d", c.Grid.Divisions))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	return errors.Join(errs...)
}
