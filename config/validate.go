package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/swdee/go-reidtrack/tracker"
)

// Validate ensures the configuration is usable. Errors from the tracker
// settings wrap tracker.ErrConfig.
func (c *Config) Validate() error {
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateSequence(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// validateTracker builds a throwaway engine so that every strategy and
// bound is checked before the first frame
func (c *Config) validateTracker() error {
	opts, err := c.Engine()
	if err != nil {
		return err
	}
	if _, err := tracker.NewEngine(opts); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	return nil
}

func (c *Config) validateSequence() error {
	if c.Sequence.MaxAspect < 0 {
		return errors.New("sequence.max_aspect must not be negative")
	}
	return nil
}

func (c *Config) validateMotion() error {
	if !c.Motion.Compensation {
		return nil
	}
	if c.Motion.MaxCorners <= 0 {
		return errors.New("motion.max_corners must be positive when motion.compensation is true")
	}
	if c.Motion.QualityLevel <= 0 || c.Motion.QualityLevel >= 1 {
		return errors.New("motion.quality_level must be between 0 and 1")
	}
	if c.Motion.MinDistance < 0 {
		return errors.New("motion.min_distance must not be negative")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.Buffer < 0 {
		return errors.New("audit.buffer must not be negative")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return errors.New("metrics.listen must be set when metrics.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
