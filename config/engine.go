package config

import (
	"fmt"

	"github.com/swdee/go-reidtrack/tracker"
)

// Engine converts the tracker related sections into engine options,
// resolving every named strategy into its closed enum
func (c *Config) Engine() (tracker.Options, error) {

	var (
		opts tracker.Options
		err  error
	)

	if opts.Metric, err = tracker.ParseDistanceMethod(c.Tracker.Metric); err != nil {
		return opts, fmt.Errorf("tracker.metric: %w", err)
	}
	if opts.Assign, err = tracker.ParseAssignMode(c.Tracker.Assign); err != nil {
		return opts, fmt.Errorf("tracker.assign: %w", err)
	}
	if opts.ActiveProxy, err = c.Proxies.Active.options(); err != nil {
		return opts, fmt.Errorf("proxy.active: %w", err)
	}
	if opts.InactiveProxy, err = c.Proxies.Inactive.options(); err != nil {
		return opts, fmt.Errorf("proxy.inactive: %w", err)
	}
	if opts.Threshold.Mode, err = tracker.ParseThresholdMode(c.Threshold.Mode); err != nil {
		return opts, fmt.Errorf("threshold.mode: %w", err)
	}
	if opts.Motion.Fusion, err = tracker.ParseFusionMode(c.Motion.Fusion); err != nil {
		return opts, fmt.Errorf("motion.fusion: %w", err)
	}

	opts.Temperature = c.Tracker.Temperature
	opts.CostLimit = c.Tracker.CostLimit
	opts.GateFirst = c.Tracker.GateFirst
	opts.OcclusionScale = c.Tracker.OcclusionScale
	opts.ActiveProximity = c.Tracker.ActiveProximity
	opts.ProximityIoU = c.Tracker.ProximityIoU
	opts.InactiveHorizon = c.Tracker.InactiveHorizon
	opts.MaxHistory = c.Tracker.MaxHistory

	opts.Threshold.Active = c.Threshold.Active
	opts.Threshold.Inactive = c.Threshold.Inactive
	opts.Threshold.StdFactor = c.Threshold.StdFactor
	opts.Threshold.Floor = c.Threshold.Floor
	opts.Threshold.Ceiling = c.Threshold.Ceiling

	opts.Motion.Enabled = c.Motion.Enabled
	opts.Motion.Weight = c.Motion.Weight
	opts.Motion.MinIoU = c.Motion.MinIoU
	opts.Motion.MaxAge = c.Motion.MaxAge
	opts.Motion.StdWeightPosition = c.Motion.StdWeightPosition
	opts.Motion.StdWeightVelocity = c.Motion.StdWeightVelocity

	return opts, nil
}

func (p Proxy) options() (tracker.ProxyOptions, error) {

	mode, err := tracker.ParseProxyMode(p.Mode)
	if err != nil {
		return tracker.ProxyOptions{}, err
	}

	red, err := tracker.ParseReduction(p.Reduction)
	if err != nil {
		return tracker.ProxyOptions{}, err
	}

	return tracker.ProxyOptions{Mode: mode, Reduction: red, Window: p.Window}, nil
}
