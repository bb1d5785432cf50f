package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/swdee/go-reidtrack/audit"
	"github.com/swdee/go-reidtrack/config"
	"github.com/swdee/go-reidtrack/logging"
	"github.com/swdee/go-reidtrack/metrics"
	"github.com/swdee/go-reidtrack/motion"
	"github.com/swdee/go-reidtrack/render"
	"github.com/swdee/go-reidtrack/sequence"
	"github.com/swdee/go-reidtrack/tracker"
)

type runFlags struct {
	images    string
	render    string
	outputDir string
	parallel  int
	cpus      string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [detections...]",
		Short: "Track every detection file and write MOT results",
		Long: "Track every detection file and write MOT results.\n\n" +
			"Detection files are given as arguments or listed under\n" +
			"sequence.inputs in the configuration. Each file produces\n" +
			"<output_dir>/<name>.txt where name is the file name without\n" +
			"its extension.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			inputs := args
			if len(inputs) == 0 {
				inputs = cfg.Sequence.Inputs
			}
			if len(inputs) == 0 {
				return errors.New("no detection files given")
			}

			if flags.outputDir != "" {
				cfg.Sequence.OutputDir = flags.outputDir
			}
			if flags.parallel > 0 {
				cfg.Sequence.Parallel = flags.parallel
			}
			if flags.cpus != "" {
				cores, err := parseCPUList(flags.cpus)
				if err != nil {
					return err
				}
				if err := setCPUAffinity(cores); err != nil {
					return err
				}
				log.Debug().Ints("cpus", cores).Msg("CPU affinity set")
			}

			summaries, err := runSequences(cmd.Context(), cfg, log, inputs, flags)

			out := cmd.OutOrStdout()
			for _, s := range summaries {
				if s == nil {
					continue
				}
				fmt.Fprintf(out, "%s: %d frames (%d skipped), %d detections, %d tracks in %s\n",
					s.Sequence, s.Frames, s.Skipped, s.Detections, s.Tracks,
					s.Duration.Round(time.Millisecond))
			}

			return err
		},
	}

	cmd.Flags().StringVar(&flags.images, "images", "", "Directory holding <sequence>/img1 frame images")
	cmd.Flags().StringVar(&flags.render, "render", "", "Directory to write annotated frames into, requires --images")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Override sequence.output_dir")
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 0, "Override sequence.parallel")
	cmd.Flags().StringVar(&flags.cpus, "cpus", "", "Pin the process to a core list such as 4-7")

	return cmd
}

// runSequences wires the configured observers and sinks around one runner
// per input and tracks them all
func runSequences(ctx context.Context, cfg *config.Config, log zerolog.Logger,
	inputs []string, flags runFlags) ([]*sequence.Summary, error) {

	if flags.render != "" && flags.images == "" {
		return nil, errors.New("--render requires --images")
	}
	if cfg.Motion.Compensation && flags.images == "" {
		return nil, errors.New("motion compensation requires --images")
	}

	opts, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.New(reg)

		stop, err := serveMetrics(cfg.Metrics.Listen, reg, log)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	var writer *audit.Writer

	if cfg.Audit.Enabled {
		store, err := audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		encoded, err := cfg.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}

		runID, err := store.BeginRun(ctx, string(encoded))
		if err != nil {
			return nil, err
		}

		log.Info().Str("run", runID).Str("path", cfg.Audit.Path).Msg("Audit run started")

		writer = audit.NewWriter(store, runID, cfg.Audit.Buffer, cfg.Audit.Embeddings, log)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Error().Err(err).Msg("Audit writer failed")
			}
		}()
	}

	runnerOpts := sequence.RunnerOptions{
		MaxAspect: cfg.Sequence.MaxAspect,
		Normalize: cfg.Sequence.Normalize,
	}

	jobs := make([]sequence.Job, 0, len(inputs))

	for _, input := range inputs {
		name := sequenceName(input)

		jobs = append(jobs, sequence.Job{
			Name: name,
			Build: func() (*sequence.Runner, func() error, error) {
				return buildRunner(cfg, opts, runnerOpts, log, input, name, flags, collector, writer)
			},
		})
	}

	return sequence.RunAll(ctx, cfg.Sequence.Parallel, jobs)
}

func buildRunner(cfg *config.Config, opts tracker.Options, runnerOpts sequence.RunnerOptions,
	log zerolog.Logger, input, name string, flags runFlags,
	collector *metrics.Collector, writer *audit.Writer) (*sequence.Runner, func() error, error) {

	seqLog := logging.ForSequence(log, name)

	engineOpts := []tracker.Option{tracker.WithLogger(seqLog)}
	runOpts := []sequence.Option{sequence.WithLogger(seqLog)}

	if collector != nil {
		obs := collector.ForSequence(name)
		engineOpts = append(engineOpts, tracker.WithObserver(obs))
		runOpts = append(runOpts, sequence.WithRecorder(obs))
	}
	if writer != nil {
		engineOpts = append(engineOpts, tracker.WithObserver(writer.ForSequence(name)))
	}

	engine, err := tracker.NewEngine(opts, engineOpts...)
	if err != nil {
		return nil, nil, err
	}

	var imageDir string
	if flags.images != "" {
		imageDir = filepath.Join(flags.images, name, "img1")
	}

	loader, err := sequence.LoadMOT(input, imageDir)
	if err != nil {
		return nil, nil, err
	}

	closers := []func() error{loader.Close}

	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	fail := func(err error) (*sequence.Runner, func() error, error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.Motion.Compensation {
		flow, err := motion.NewFlowEstimator(motion.FlowOptions{
			MaxCorners:   cfg.Motion.MaxCorners,
			QualityLevel: cfg.Motion.QualityLevel,
			MinDistance:  cfg.Motion.MinDistance,
			MinPoints:    motion.DefaultFlowOptions().MinPoints,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, flow.Close)
		runOpts = append(runOpts, sequence.WithMotion(flow))
	}

	sink, err := sequence.NewMOTSink(filepath.Join(cfg.Sequence.OutputDir, name+".txt"))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, sink.Close)
	runOpts = append(runOpts, sequence.WithSink(sink))

	if flags.render != "" {
		rw, err := render.NewWriter(filepath.Join(flags.render, name), render.DefaultStyle())
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rw.Close)
		runOpts = append(runOpts, sequence.WithSink(rw))
	}

	return sequence.NewRunner(engine, loader, runnerOpts, runOpts...), cleanup, nil
}

// sequenceName derives a sequence name from its detection file, MOT layouts
// such as MOT17-02/det/det.txt are named after the sequence directory
func sequenceName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	dir := filepath.Dir(path)
	if filepath.Base(dir) == "det" {
		return filepath.Base(filepath.Dir(dir))
	}

	return base
}

// serveMetrics exposes reg on listen until the returned stop is called
func serveMetrics(listen string, reg *prometheus.Registry, log zerolog.Logger) (func(), error) {

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	log.Info().Str("listen", ln.Addr().String()).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
