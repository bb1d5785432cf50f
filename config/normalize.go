package config

import "strings"

func (c *Config) normalize() {
	c.normalizeTracker()
	c.normalizeMotion()
	c.normalizeSequence()
	c.normalizeLogging()
}

func (c *Config) normalizeTracker() {
	c.Tracker.Metric = lower(c.Tracker.Metric)
	c.Tracker.Assign = lower(c.Tracker.Assign)
	c.Threshold.Mode = lower(c.Threshold.Mode)

	for _, p := range []*Proxy{&c.Proxies.Active, &c.Proxies.Inactive} {
		p.Mode = lower(p.Mode)
		p.Reduction = lower(p.Reduction)
	}
}

func (c *Config) normalizeMotion() {
	c.Motion.Fusion = lower(c.Motion.Fusion)
}

func (c *Config) normalizeSequence() {
	inputs := c.Sequence.Inputs[:0]
	for _, in := range c.Sequence.Inputs {
		if in = strings.TrimSpace(in); in != "" {
			inputs = append(inputs, in)
		}
	}
	c.Sequence.Inputs = inputs

	if c.Sequence.Parallel <= 0 {
		c.Sequence.Parallel = defaultParallel
	}
	if strings.TrimSpace(c.Sequence.OutputDir) == "" {
		c.Sequence.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Audit.Path) == "" {
		c.Audit.Path = defaultAuditPath
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lower(c.Logging.Format)
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = lower(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
