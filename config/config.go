package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Tracker holds the association settings of the engine
type Tracker struct {
	// Metric is one of euclidean, cosine or learned
	Metric      string  `toml:"metric"`
	Temperature float64 `toml:"temperature"`
	// Assign is joint or separate
	Assign    string  `toml:"assign"`
	CostLimit float64 `toml:"cost_limit"`
	GateFirst bool    `toml:"gate_first"`
	// OcclusionScale loosens thresholds for detections covered by others
	OcclusionScale  bool    `toml:"occlusion_scale"`
	ActiveProximity bool    `toml:"active_proximity"`
	ProximityIoU    float64 `toml:"proximity_iou"`
	InactiveHorizon int     `toml:"inactive_horizon"`
	MaxHistory      int     `toml:"max_history"`
}

// Proxy configures how the feature history of one candidate set is reduced
type Proxy struct {
	// Mode is each_sample, mean or last
	Mode string `toml:"mode"`
	// Reduction is nearest, mean, farthest or minmax
	Reduction string `toml:"reduction"`
	Window    int    `toml:"window"`
}

// Proxies holds the proxy settings per candidate set
type Proxies struct {
	Active   Proxy `toml:"active"`
	Inactive Proxy `toml:"inactive"`
}

// Threshold configures the acceptance thresholds
type Threshold struct {
	// Mode is fixed, every, first or running
	Mode      string  `toml:"mode"`
	Active    float64 `toml:"active"`
	Inactive  float64 `toml:"inactive"`
	StdFactor float64 `toml:"std_factor"`
	Floor     float64 `toml:"floor"`
	Ceiling   float64 `toml:"ceiling"`
}

// Motion configures the Kalman motion model and camera motion compensation
type Motion struct {
	Enabled bool `toml:"enabled"`
	// Fusion is convex or gate
	Fusion            string  `toml:"fusion"`
	Weight            float64 `toml:"weight"`
	MinIoU            float64 `toml:"min_iou"`
	MaxAge            int     `toml:"max_age"`
	StdWeightPosition float64 `toml:"std_weight_position"`
	StdWeightVelocity float64 `toml:"std_weight_velocity"`
	// Compensation estimates camera motion from the frame images
	Compensation bool    `toml:"compensation"`
	MaxCorners   int     `toml:"max_corners"`
	QualityLevel float64 `toml:"quality_level"`
	MinDistance  float64 `toml:"min_distance"`
}

// Sequence configures the frame orchestrator
type Sequence struct {
	// Inputs lists MOT style detection files with appended features
	Inputs    []string `toml:"inputs"`
	OutputDir string   `toml:"output_dir"`
	// MaxAspect drops detections whose height to width ratio is not below
	// it, 0 keeps all detections
	MaxAspect float64 `toml:"max_aspect"`
	// Parallel is the number of sequences tracked concurrently
	Parallel int `toml:"parallel"`
	// Normalize scales every feature to unit length before tracking
	Normalize bool `toml:"normalize"`
}

// Audit configures the sqlite audit log
type Audit struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	Embeddings bool   `toml:"embeddings"`
	Buffer     int    `toml:"buffer"`
}

// Metrics configures the prometheus endpoint
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Logging configures the log output
type Logging struct {
	// Format is console or json
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values of the tracker.
//
// Sections:
//   - Tracker: metric, assignment and track lifetime
//   - Proxies: feature history reduction per candidate set
//   - Threshold: acceptance thresholds and their adaptation
//   - Motion: Kalman motion model and camera motion compensation
//   - Sequence: inputs, outputs and parallelism
//   - Audit: sqlite log of per frame distances and events
//   - Metrics: prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Tracker   Tracker   `toml:"tracker"`
	Proxies   Proxies   `toml:"proxy"`
	Threshold Threshold `toml:"threshold"`
	Motion    Motion    `toml:"motion"`
	Sequence  Sequence  `toml:"sequence"`
	Audit     Audit     `toml:"audit"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
}

// Load parses and validates the configuration file at path. Missing files
// and an empty path yield the defaults. The returned bool reports whether a
// file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			exists = true

			decoder := toml.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return &cfg, exists, nil
}

// Encode renders the configuration as TOML
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
