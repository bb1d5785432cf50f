package config

const (
	defaultMetric            = "cosine"
	defaultAssign            = "joint"
	defaultProxyMode         = "each_sample"
	defaultProxyReduction    = "nearest"
	defaultThresholdMode     = "fixed"
	defaultFusion            = "convex"
	defaultInactiveHorizon   = 50
	defaultProximityIoU      = 0.1
	defaultActiveThreshold   = 0.4
	defaultInactiveThreshold = 0.55
	defaultThresholdCeiling  = 2
	defaultStdFactor         = 1
	defaultMotionWeight      = 0.5
	defaultMotionMinIoU      = 0.2
	defaultStdWeightPosition = 1.0 / 20
	defaultStdWeightVelocity = 1.0 / 160
	defaultMaxCorners        = 200
	defaultQualityLevel      = 0.01
	defaultMinDistance       = 10
	defaultOutputDir         = "results"
	defaultParallel          = 1
	defaultAuditPath         = "audit.db"
	defaultAuditBuffer       = 64
	defaultMetricsListen     = "127.0.0.1:9464"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with the tracker defaults
func Default() Config {
	return Config{
		Tracker: Tracker{
			Metric:          defaultMetric,
			Temperature:     1,
			Assign:          defaultAssign,
			OcclusionScale:  true,
			ProximityIoU:    defaultProximityIoU,
			InactiveHorizon: defaultInactiveHorizon,
		},
		Proxies: Proxies{
			Active: Proxy{
				Mode:      defaultProxyMode,
				Reduction: defaultProxyReduction,
			},
			Inactive: Proxy{
				Mode:      defaultProxyMode,
				Reduction: defaultProxyReduction,
			},
		},
		Threshold: Threshold{
			Mode:      defaultThresholdMode,
			Active:    defaultActiveThreshold,
			Inactive:  defaultInactiveThreshold,
			StdFactor: defaultStdFactor,
			Ceiling:   defaultThresholdCeiling,
		},
		Motion: Motion{
			Fusion:            defaultFusion,
			Weight:            defaultMotionWeight,
			MinIoU:            defaultMotionMinIoU,
			StdWeightPosition: defaultStdWeightPosition,
			StdWeightVelocity: defaultStdWeightVelocity,
			MaxCorners:        defaultMaxCorners,
			QualityLevel:      defaultQualityLevel,
			MinDistance:       defaultMinDistance,
		},
		Sequence: Sequence{
			OutputDir: defaultOutputDir,
			Parallel:  defaultParallel,
			Normalize: true,
		},
		Audit: Audit{
			Path:   defaultAuditPath,
			Buffer: defaultAuditBuffer,
		},
		Metrics: Metrics{
			Listen: defaultMetricsListen,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
