package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/KevinWang15/go-json5"
	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/evocal/internal/calib"
	"github.com/ironsheep/evocal/internal/detection"
	"github.com/ironsheep/evocal/internal/evolve"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the calibration run description.
type Config struct {
	Scene     Scene                  `yaml:"scene" json:"scene"`
	Target    Target                 `yaml:"target" json:"target"`
	Search    Search                 `yaml:"search" json:"search"`
	Detection detection.TargetParams `yaml:"detection" json:"detection"`
	Output    Output                 `yaml:"output" json:"output"`
}

// Scene describes the sensor and the optical path.
type Scene struct {
	ImageSize [2]int     `yaml:"image_size" json:"image_size"` // width, height in pixels
	PixelSize [2]float64 `yaml:"pixel_size" json:"pixel_size"` // mm per pixel in x, y

	calib.MultimediaParams `yaml:",inline"`

	// HighpassSize is the box filter width used to remove the background.
	HighpassSize int `yaml:"highpass_size" json:"highpass_size"`
}

// Target names the camera and its calibration inputs.
type Target struct {
	Number      int        `yaml:"number" json:"number"`
	Image       string     `yaml:"image" json:"image"`
	KnownPoints string     `yaml:"known_points" json:"known_points"`
	GlassVec    [3]float64 `yaml:"glass_vec" json:"glass_vec"`
}

// Search holds the evolutionary search parameters. Bounds may list fewer
// than 14 [min, max] pairs; the rest come from the camera 0 preset. With no
// bounds at all the preset of Target.Number is used.
type Search struct {
	PopSize        int          `yaml:"pop_size" json:"pop_size"`
	MutationChance float64      `yaml:"mutation_chance" json:"mutation_chance"`
	NicheSize      float64      `yaml:"niche_size" json:"niche_size"`
	NichePenalty   float64      `yaml:"niche_penalty" json:"niche_penalty"`
	MaxIterations  int          `yaml:"max_iterations" json:"max_iterations"`
	ReportEvery    int          `yaml:"report_every" json:"report_every"`
	Parallelism    int          `yaml:"parallelism" json:"parallelism"`
	Seed           uint64       `yaml:"seed" json:"seed"`
	Bounds         [][2]float64 `yaml:"bounds" json:"bounds"`
}

// Output names the diagnostic files. Empty paths disable them.
type Output struct {
	Plot        string `yaml:"plot" json:"plot"`
	HistoryPlot string `yaml:"history_plot" json:"history_plot"`
}

// Default returns a config with every optional value filled in.
func Default() Config {
	ev := evolve.DefaultConfig()
	return Config{
		Scene: Scene{
			MultimediaParams: calib.Air(),
			HighpassSize:     25,
		},
		Search: Search{
			PopSize:        ev.PopSize,
			MutationChance: ev.MutationChance,
			NicheSize:      ev.NicheSize,
			NichePenalty:   ev.NichePenalty,
			MaxIterations:  ev.MaxIterations,
			ReportEvery:    ev.ReportEvery,
			Parallelism:    ev.Parallelism,
		},
		Detection: detection.DefaultTargetParams(),
	}
}

// Load reads a YAML config, or JSON5 when the extension is .json or .json5.
// Values absent from the file keep their defaults. Relative paths are
// resolved against the directory of the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config data over the defaults. ext selects the format as in
// Load. The result is not validated.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	// Wall lists from the file replace the default air layer.
	cfg.Scene.N2, cfg.Scene.D = nil, nil

	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON5: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if len(cfg.Scene.N2) == 0 && len(cfg.Scene.D) == 0 {
		air := calib.Air()
		cfg.Scene.N2, cfg.Scene.D = air.N2, air.D
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	resolve(&c.Target.Image)
	resolve(&c.Target.KnownPoints)
	resolve(&c.Output.Plot)
	resolve(&c.Output.HistoryPlot)
}

// Validate checks the config for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.Target.Image == "" {
		return fmt.Errorf("%w: target.image is required", ErrInvalid)
	}
	if c.Target.KnownPoints == "" {
		return fmt.Errorf("%w: target.known_points is required", ErrInvalid)
	}
	if c.Glass().Norm() == 0 {
		return fmt.Errorf("%w: target.glass_vec must not be zero", ErrInvalid)
	}
	if c.Scene.HighpassSize < 0 {
		return fmt.Errorf("%w: scene.highpass_size must not be negative", ErrInvalid)
	}
	if err := c.ControlParams().Validate(); err != nil {
		return fmt.Errorf("%w: scene: %v", ErrInvalid, err)
	}
	if err := c.EvolveConfig().Validate(); err != nil {
		return fmt.Errorf("%w: search: %v", ErrInvalid, err)
	}
	if _, err := c.Bounds(); err != nil {
		return fmt.Errorf("%w: search.bounds: %v", ErrInvalid, err)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: detection: %v", ErrInvalid, err)
	}
	return nil
}

// ControlParams returns the sensor and optical path description.
func (c *Config) ControlParams() calib.ControlParams {
	return calib.ControlParams{
		ImageWidth:  c.Scene.ImageSize[0],
		ImageHeight: c.Scene.ImageSize[1],
		PixelWidth:  c.Scene.PixelSize[0],
		PixelHeight: c.Scene.PixelSize[1],
		Multimedia:  c.Scene.MultimediaParams,
	}
}

// Bounds returns the full per-gene search bounds.
func (c *Config) Bounds() (calib.Bounds, error) {
	var b calib.Bounds
	if len(c.Search.Bounds) == 0 {
		preset, err := calib.PresetBounds(c.Target.Number)
		if err != nil {
			return nil, err
		}
		b = preset
	} else {
		if len(c.Search.Bounds) > calib.VectorLen {
			return nil, fmt.Errorf("%w: %d bounds for %d genes", calib.ErrBoundsMismatch, len(c.Search.Bounds), calib.VectorLen)
		}
		partial := make(calib.Bounds, len(c.Search.Bounds))
		for i, pair := range c.Search.Bounds {
			partial[i] = calib.Bound{Min: pair[0], Max: pair[1]}
		}
		b = calib.CompleteBounds(partial)
	}
	if err := b.Validate(calib.VectorLen); err != nil {
		return nil, err
	}
	return b, nil
}

// EvolveConfig returns the fitter parameters.
func (c *Config) EvolveConfig() evolve.Config {
	ev := evolve.DefaultConfig()
	ev.PopSize = c.Search.PopSize
	ev.MutationChance = c.Search.MutationChance
	ev.NicheSize = c.Search.NicheSize
	ev.NichePenalty = c.Search.NichePenalty
	ev.MaxIterations = c.Search.MaxIterations
	ev.ReportEvery = c.Search.ReportEvery
	ev.Parallelism = c.Search.Parallelism
	ev.Seed = c.Search.Seed
	return ev
}

// Glass returns the glass normal vector.
func (c *Config) Glass() r3.Vector {
	g := c.Target.GlassVec
	return r3.Vector{X: g[0], Y: g[1], Z: g[2]}
}
