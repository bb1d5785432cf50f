// Package metrics exports tracking statistics as prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swdee/go-reidtrack/tracker"
)

// Skip reasons recorded by SkippedFrame
const (
	ReasonShape   = "shape"
	ReasonEncoder = "encoder"
)

// Collector holds the tracking collectors of all sequences, labelled by
// sequence name
type Collector struct {
	frames        *prometheus.CounterVec
	detections    *prometheus.CounterVec
	events        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	tracks        *prometheus.GaugeVec
	thresholds    *prometheus.GaugeVec
	frameDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Collector {

	c := &Collector{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reidtrack_frames_total",
				Help: "Total frames associated",
			},
			[]string{"sequence"},
		),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reidtrack_detections_total",
				Help: "Total detections passed to the engine",
			},
			[]string{"sequence"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reidtrack_track_events_total",
				Help: "Track lifecycle events by type",
			},
			[]string{"sequence", "event"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reidtrack_skipped_frames_total",
				Help: "Frames rejected without changing track state",
			},
			[]string{"sequence", "reason"},
		),
		tracks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reidtrack_tracks",
				Help: "Tracks held after the last frame by state",
			},
			[]string{"sequence", "state"},
		),
		thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reidtrack_threshold",
				Help: "Acceptance threshold in effect for the last frame",
			},
			[]string{"sequence", "set"},
		),
		frameDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reidtrack_frame_duration_seconds",
				Help:    "Time spent per frame including feature extraction",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"sequence"},
		),
	}

	reg.MustRegister(c.frames, c.detections, c.events, c.skipped, c.tracks,
		c.thresholds, c.frameDuration)

	return c
}

// ForSequence returns an engine observer recording into the series of the
// named sequence
func (c *Collector) ForSequence(name string) *SequenceObserver {
	return &SequenceObserver{c: c, sequence: name}
}

// SequenceObserver records the frames of one sequence
type SequenceObserver struct {
	c        *Collector
	sequence string
}

// ObserveFrame implements tracker.Observer
func (o *SequenceObserver) ObserveFrame(a *tracker.FrameAudit) {

	res := a.Result
	c := o.c

	c.frames.WithLabelValues(o.sequence).Inc()
	c.detections.WithLabelValues(o.sequence).Add(float64(len(a.Detections)))

	// reactivations are counted within matches as well
	c.events.WithLabelValues(o.sequence, "matched").Add(float64(len(res.Matched)))
	c.events.WithLabelValues(o.sequence, "reactivated").Add(float64(len(res.Reactivated)))
	c.events.WithLabelValues(o.sequence, "created").Add(float64(len(res.Created)))
	c.events.WithLabelValues(o.sequence, "demoted").Add(float64(len(res.Demoted)))
	c.events.WithLabelValues(o.sequence, "pruned").Add(float64(len(res.Pruned)))

	c.tracks.WithLabelValues(o.sequence, "active").Set(float64(res.NumActive))
	c.tracks.WithLabelValues(o.sequence, "inactive").Set(float64(res.NumInactive))

	c.thresholds.WithLabelValues(o.sequence, "active").Set(res.ActiveThreshold)
	c.thresholds.WithLabelValues(o.sequence, "inactive").Set(res.InactiveThreshold)
}

// SkippedFrame counts a frame dropped for the given reason
func (o *SequenceObserver) SkippedFrame(reason string) {
	o.c.skipped.WithLabelValues(o.sequence, reason).Inc()
}

// FrameDuration records the wall time spent on one frame
func (o *SequenceObserver) FrameDuration(d time.Duration) {
	o.c.frameDuration.WithLabelValues(o.sequence).Observe(d.Seconds())
}
