// Command lanespray runs the vegetation detection and lane valve controller
// against a frame source until the source ends or the process is signalled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/lanespray/internal/actuator"
	"github.com/banshee-data/lanespray/internal/capture"
	"github.com/banshee-data/lanespray/internal/config"
	"github.com/banshee-data/lanespray/internal/frame"
	"github.com/banshee-data/lanespray/internal/journal"
	"github.com/banshee-data/lanespray/internal/laneplot"
	"github.com/banshee-data/lanespray/internal/monitoring"
	"github.com/banshee-data/lanespray/internal/pipeline"
	"github.com/banshee-data/lanespray/internal/version"
)

var log = monitoring.Component("main")

type options struct {
	configPath  string
	dev         bool
	locator     bool
	plotDir     string
	logLevel    string
	logJSON     bool
	showVersion bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("lanespray", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.configPath, "config", "", "Path to a TOML config file (defaults are used when empty)")
	fs.BoolVar(&o.dev, "dev", false, "Dev mode: synthetic frames and the logging actuator")
	fs.BoolVar(&o.locator, "locator", false, "Record decisions without opening any valve")
	fs.StringVar(&o.plotDir, "plot-dir", "", "Write lane ratio/state plots to this directory on exit")
	fs.StringVar(&o.logLevel, "log-level", "diag", "Log level: ops, diag or trace")
	fs.BoolVar(&o.logJSON, "log-json", false, "Emit JSON logs instead of console output")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// deps holds the pieces tests replace.
type deps struct {
	stderr   io.Writer
	openPort actuator.PortOpener
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], deps{stderr: os.Stderr, openPort: actuator.OpenSerialPort})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lanespray: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, d deps) (err error) {
	opts, err := parseFlags(args, d.stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintln(d.stderr, version.String())
		return nil
	}
	level, err := monitoring.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	monitoring.Configure(level, d.stderr, opts.logJSON)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	spray := cfg.Resolve()
	pcfg := spray.Pipeline()
	if err := pcfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Diagf("%s starting: lanes=%d strategy=%v min_ratio=%.4f fire_ms=%d holdoff_ms=%d",
		version.String(), spray.LaneCount, spray.Strategy, spray.MinRatio, spray.FireMs, spray.HoldoffMs)

	metrics := monitoring.NewMetrics()
	registerBuildInfo(metrics.Registry())
	stopMetrics, err := serveMetrics(cfg.Metrics.Listen, metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	act, err := buildActuator(cfg, d.openPort)
	if err != nil {
		return err
	}
	if cfg.Actuator.Locator {
		log.Diagf("locator mode: valves stay closed")
		act = actuator.NewLocator(act)
	}

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path, journal.Options{
			Lanes:   spray.LaneCount,
			Locator: cfg.Actuator.Locator,
			Note:    version.String(),
			Buffer:  cfg.Journal.Buffer,
			Metrics: metrics,
		})
		if err != nil {
			actuator.Close(act)
			return err
		}
		act = journal.Wrap(act, j)
	}
	defer func() {
		err = errors.Join(err, closeOutputs(act, j))
	}()

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	popts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	var plots *laneplot.Plotter
	if opts.plotDir != "" {
		plots = laneplot.New(spray.LaneCount, float64(spray.MinRatio))
		popts = append(popts, pipeline.WithObserver(plots))
	}

	if err := pipeline.Run(ctx, src, act, pcfg, popts...); err != nil {
		return err
	}

	if plots != nil {
		return writePlots(plots, opts.plotDir)
	}
	return nil
}

func loadConfig(opts options) (*config.File, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.dev {
		cfg.Source.Kind = "synthetic"
		cfg.Actuator.Kind = "log"
	}
	if opts.locator {
		cfg.Actuator.Locator = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func buildActuator(cfg *config.File, open actuator.PortOpener) (actuator.Actuator, error) {
	switch cfg.Actuator.Kind {
	case "serial":
		relay, err := actuator.OpenSerialRelay(cfg.Actuator.Port, cfg.Actuator.Serial, cfg.GetChannels(), open)
		if err != nil {
			return nil, err
		}
		log.Diagf("serial relay on %s channels=%v", cfg.Actuator.Port, cfg.GetChannels())
		return relay, nil
	case "none":
		return actuator.Nop{}, nil
	case "", "log":
		return &actuator.Logging{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown actuator kind %q", frame.ErrInvalidInput, cfg.Actuator.Kind)
	}
}

func buildSource(cfg *config.File) (frame.Source, error) {
	switch cfg.Source.Kind {
	case "replay":
		return &capture.Replay{
			Dir:      cfg.Source.Dir,
			Interval: cfg.GetSourceInterval(),
			Loop:     cfg.Source.Loop,
		}, nil
	case "", "synthetic":
		pattern, err := capture.ParsePattern(cfg.Source.Pattern)
		if err != nil {
			return nil, err
		}
		w, h := cfg.GetSourceSize()
		s := capture.NewSynthetic(w, h, pattern)
		s.Interval = cfg.GetSourceInterval()
		s.Frames = cfg.Source.Frames
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", frame.ErrInvalidInput, cfg.Source.Kind)
	}
}

// closeOutputs turns the valves off and flushes the journal. The journal
// recorder closes the actuator chain beneath it.
func closeOutputs(act actuator.Actuator, j *journal.Journal) error {
	var errs []error
	if err := actuator.Close(act); err != nil {
		errs = append(errs, fmt.Errorf("close actuator: %w", err))
	}
	if j != nil {
		if n := j.Dropped(); n > 0 {
			log.Opsf("journal dropped %d events", n)
		}
		if err := j.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

func writePlots(p *laneplot.Plotter, dir string) error {
	for _, s := range p.Summary() {
		log.Diag().Int("lane", s.Lane).
			Float64("mean_ratio", s.MeanRatio).
			Float64("max_ratio", s.MaxRatio).
			Float64("duty_cycle", s.DutyCycle).
			Int("fires", s.Fires).
			Msg("lane summary")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	n, err := p.GeneratePlots(dir)
	if err != nil {
		return fmt.Errorf("generate plots: %w", err)
	}
	log.Diagf("wrote %d plots to %s", n, dir)
	return nil
}

func registerBuildInfo(reg *prometheus.Registry) {
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lanespray",
		Name:      "build_info",
		Help:      "Build metadata; the value is always 1.",
	}, []string{"version", "git_sha"})
	info.WithLabelValues(version.Version, version.GitSHA).Set(1)
	reg.MustRegister(info)
}

// serveMetrics exposes /metrics on listen. An empty address disables it.
// The returned func shuts the server down.
func serveMetrics(listen string, m *monitoring.Metrics) (func(), error) {
	if listen == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Opsf("metrics server: %v", err)
		}
	}()
	log.Diagf("metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Opsf("metrics shutdown: %v", err)
		}
	}, nil
}
