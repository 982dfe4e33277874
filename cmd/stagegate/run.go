package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/stagegate/internal/config"
	"github.com/kingrea/stagegate/internal/contracts"
	"github.com/kingrea/stagegate/internal/derive"
	"github.com/kingrea/stagegate/internal/logging"
	"github.com/kingrea/stagegate/internal/metrics"
	"github.com/kingrea/stagegate/internal/pipeline"
	"github.com/kingrea/stagegate/internal/pipeline/fixture"
	"github.com/kingrea/stagegate/internal/store"
)

type runOptions struct {
	venture     string
	fixtures    string
	advisory    bool
	resume      bool
	targets     []int
	maxParallel int
	metricsAddr string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ropts := &runOptions{maxParallel: -1}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay recorded stage outputs through the gated pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadProject()
			if err != nil {
				return err
			}
			defer logger.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			report, runErr := executeRun(ctx, cfg, logger, ropts)
			if report == nil {
				return runErr
			}
			if opts.output != "text" {
				if err := writeStructured(cmd.OutOrStdout(), opts.output, report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}
			var blocked *pipeline.BlockedError
			if errors.As(runErr, &blocked) {
				return errContractViolation
			}
			return runErr
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&ropts.venture, "venture", "", "venture name (defaults to the configured venture)")
	flags.StringVar(&ropts.fixtures, "fixtures", "", "directory of recorded stage outputs (defaults to fixtures_dir)")
	flags.BoolVar(&ropts.advisory, "advisory", false, "log contract violations instead of halting")
	flags.BoolVar(&ropts.resume, "resume", false, "restore previously published outputs before running")
	flags.IntSliceVar(&ropts.targets, "target", nil, "only run these stages and their dependencies")
	flags.IntVar(&ropts.maxParallel, "max-parallel", -1, "stages to execute at once (defaults to runtime.max_parallel)")
	flags.StringVar(&ropts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	return cmd
}

func executeRun(ctx context.Context, cfg *config.Config, logger *logging.Logger, ropts *runOptions) (*pipeline.Report, error) {
	venture := ropts.venture
	if venture == "" {
		venture = cfg.Project.Venture
	}
	enforcement := cfg.Enforcement()
	if ropts.advisory {
		enforcement = contracts.Advisory
	}
	fixtures := cfg.FixturesDir()
	if ropts.fixtures != "" {
		fixtures = ropts.fixtures
	}
	maxParallel := cfg.Project.Runtime.MaxParallel
	if ropts.maxParallel >= 0 {
		maxParallel = ropts.maxParallel
	}

	rec := metrics.New()
	addr := cfg.Project.Metrics.Addr
	if ropts.metricsAddr != "" {
		addr = ropts.metricsAddr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: rec.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "addr", addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	outputs := store.NewOutputs(cfg.OutputsDir())
	runner, err := pipeline.New(fixture.NewExecutor(fixtures),
		pipeline.WithEnforcement(enforcement),
		pipeline.WithLogger(logger.Logger),
		pipeline.WithDerivations(derive.Default()),
		pipeline.WithStore(outputs),
		pipeline.WithRecorder(rec),
		pipeline.WithMaxParallel(maxParallel),
		pipeline.WithBatchSize(cfg.Project.Runtime.BatchSize),
		pipeline.WithTargets(ropts.targets...),
		pipeline.WithManualGates(cfg.ManualGates()),
	)
	if err != nil {
		return nil, err
	}
	if ropts.resume {
		if err := restore(runner, outputs, venture); err != nil {
			return nil, err
		}
	}

	report, runErr := runner.Run(ctx, venture)
	if err := store.NewRuns(cfg.OutputsDir()).Save(report); err != nil {
		logger.Error("save run report", "run_id", report.RunID, "error", err)
	}
	return report, runErr
}

func restore(runner *pipeline.Runner, outputs *store.Outputs, venture string) error {
	stages, err := outputs.Stages(venture)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		record, err := outputs.Load(venture, stage)
		if err != nil {
			return err
		}
		if _, err := runner.Restore(stage, record.Fields); err != nil {
			return fmt.Errorf("resume stage-%02d: %w", stage, err)
		}
	}
	return nil
}
