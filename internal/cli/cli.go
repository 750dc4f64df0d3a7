// Package cli builds the `fiddler` command-line application: lint,
// run and test subcommands sharing a `-c`/`--config` repeatable flag
// and a `-l`/`--log-level` flag, built on github.com/urfave/cli/v2
// with one subcommand per lifecycle action.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/metrics"
	"github.com/rc1405/fiddler/internal/pipeline"
	"github.com/rc1405/fiddler/internal/plugins"
	"github.com/rc1405/fiddler/internal/stream"
	"github.com/rc1405/fiddler/internal/testharness"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitConfigInvalid = 1
	ExitTestFailed    = 2
	ExitRuntimeError  = 3
)

var configFlag = &cli.StringSliceFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to a pipeline config file (repeatable)",
	Required: true,
}

var logLevelFlag = &cli.StringFlag{
	Name:    "log-level",
	Aliases: []string{"l"},
	Usage:   "off, fatal, error, warn, info, debug, trace, all",
	Value:   "info",
}

// NewApp builds the fiddler CLI application with every built-in
// plugin registered.
func NewApp() *cli.App {
	reg := component.NewRegistry()
	if err := plugins.Register(reg); err != nil {
		panic(fmt.Sprintf("registering built-in plugins: %v", err))
	}
	reg.Seal()
	return NewAppWithRegistry(reg)
}

// NewAppWithRegistry builds the CLI against a caller-supplied,
// already-sealed registry. Exposed for tests that need to substitute
// stub plugins.
func NewAppWithRegistry(reg *component.Registry) *cli.App {
	return &cli.App{
		Name:  "fiddler",
		Usage: "run configuration-driven message pipelines",
		Commands: []*cli.Command{
			lintCommand(reg),
			runCommand(reg),
			testCommand(reg),
		},
	}
}

func lintCommand(reg *component.Registry) *cli.Command {
	return &cli.Command{
		Name:  "lint",
		Usage: "validate one or more pipeline configs without running them",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			for _, path := range c.StringSlice("config") {
				cfg, err := config.Load(path)
				if err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", path, err), ExitConfigInvalid)
				}
				if err := config.Validate(cfg, reg); err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", path, err), ExitConfigInvalid)
				}
				fmt.Fprintf(c.App.Writer, "%s: ok\n", path)
			}
			return nil
		},
	}
}

func runCommand(reg *component.Registry) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run one or more pipelines until interrupted",
		Flags: []cli.Flag{configFlag, logLevelFlag},
		Action: func(c *cli.Context) error {
			lg := log.New(os.Stderr, c.String("log-level"))
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			paths := c.StringSlice("config")
			errCh := make(chan error, len(paths))
			for _, path := range paths {
				path := path
				go func() {
					errCh <- runOne(ctx, reg, lg, path)
				}()
			}
			var firstErr error
			for range paths {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if firstErr != nil {
				return cli.Exit(firstErr.Error(), ExitRuntimeError)
			}
			return nil
		},
	}
}

func runOne(ctx context.Context, reg *component.Registry, lg log.Modular, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg, reg); err != nil {
		return err
	}

	agg := metrics.New()
	pipelineLog := lg.WithFields(map[string]string{"pipeline": cfg.Label})
	deps := component.Dependencies{Log: pipelineLog, Metrics: agg}

	in, err := plugins.BuildInput(reg, deps, cfg.Input)
	if err != nil {
		return err
	}
	if err := in.Open(ctx); err != nil {
		return err
	}
	chain, err := plugins.BuildProcessorChain(reg, deps, cfg.Processors)
	if err != nil {
		return err
	}
	out, err := plugins.BuildOutput(reg, deps, cfg.Output)
	if err != nil {
		return err
	}

	tr := stream.New(streamConfigFrom(cfg), agg, pipelineLog)
	tr.StartReaper(ctx)
	defer tr.Stop()

	var fingerprint pipeline.FingerprintFunc
	if cfg.Dedup != nil && cfg.Dedup.Enabled {
		fingerprint = pipeline.NewFingerprint(cfg.Dedup.MetadataKeys)
	}

	pubLoop, err := metricsPublisherLoop(cfg.Metrics, agg, pipelineLog)
	if err != nil {
		return err
	}
	go pubLoop.Run(ctx)
	defer pubLoop.Stop()

	p := pipeline.New(pipeline.Options{
		NumThreads:  cfg.NumThreads,
		MaxInFlight: cfg.MaxInFlight,
		Input:       in,
		Processors:  chain,
		Output:      out,
		Tracker:     tr,
		Metrics:     agg,
		Log:         pipelineLog,
		Fingerprint: fingerprint,
	})
	return p.Run(ctx)
}

// prometheusPublisherOptions is the shape of the `prometheus` metrics
// publisher's options block in a pipeline document.
type prometheusPublisherOptions struct {
	Namespace string `yaml:"namespace"`
}

// metricsPublisherLoop builds the publisher named by cfg.Publisher.Tag
// and wraps it in a PublisherLoop sampling agg at cfg.IntervalSecs. A
// nil cfg (no `metrics:` block) still starts a loop, defaulting to
// StdoutPublisher on os.Stdout, matching the doc comment on
// StdoutPublisher.
func metricsPublisherLoop(cfg *config.MetricsConfig, agg *metrics.Aggregator, lg log.Modular) (*metrics.PublisherLoop, error) {
	if cfg == nil || cfg.Publisher == nil {
		return metrics.NewPublisherLoop(agg, metrics.NewStdoutPublisher(os.Stdout), 0, 0, lg), nil
	}

	interval := time.Duration(cfg.IntervalSecs) * time.Second

	switch cfg.Publisher.Tag {
	case "stdout":
		return metrics.NewPublisherLoop(agg, metrics.NewStdoutPublisher(os.Stdout), interval, 0, lg), nil
	case "prometheus":
		var opts prometheusPublisherOptions
		if err := config.DecodeInto(cfg.Publisher.Options, &opts); err != nil {
			return nil, fmt.Errorf("metrics.publisher.prometheus: %w", err)
		}
		if opts.Namespace == "" {
			opts.Namespace = "fiddler"
		}
		return metrics.NewPublisherLoop(agg, metrics.NewPrometheusPublisher(opts.Namespace), interval, 0, lg), nil
	default:
		return nil, fmt.Errorf("metrics.publisher: unknown publisher %q", cfg.Publisher.Tag)
	}
}

func streamConfigFrom(cfg *config.PipelineConfig) stream.Config {
	sc := stream.Config{}
	if cfg.Dedup != nil {
		sc.DedupEnabled = cfg.Dedup.Enabled
		sc.DedupWindow = cfg.Dedup.WindowSize
	}
	return sc
}

func testCommand(reg *component.Registry) *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "run fixture-driven tests declared alongside pipeline configs",
		Flags: []cli.Flag{configFlag, logLevelFlag},
		Action: func(c *cli.Context) error {
			anyFailed := false
			for _, path := range c.StringSlice("config") {
				cfg, err := config.Load(path)
				if err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", path, err), ExitConfigInvalid)
				}
				if err := config.Validate(cfg, reg); err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", path, err), ExitConfigInvalid)
				}

				fixturePath := testharness.FixturePath(path)
				fixtures, err := testharness.LoadFixtures(fixturePath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("%s: %v", fixturePath, err), ExitConfigInvalid)
				}

				agg := metrics.New()
				lg := log.New(os.Stderr, c.String("log-level"))
				deps := component.Dependencies{Log: lg, Metrics: agg}

				results, err := testharness.Run(context.Background(), cfg, reg, deps, fixtures)
				if err != nil {
					return cli.Exit(err.Error(), ExitRuntimeError)
				}
				for _, r := range results {
					status := "PASS"
					if !r.Passed {
						status = "FAIL"
						anyFailed = true
					}
					fmt.Fprintf(c.App.Writer, "%s: %s - %s\n", path, status, r.Name)
					if !r.Passed {
						fmt.Fprintf(c.App.Writer, "  expected: %v\n  actual:   %v\n", r.Expected, r.Actual)
					}
				}
			}
			if anyFailed {
				return cli.Exit("one or more fixtures failed", ExitTestFailed)
			}
			return nil
		},
	}
}
