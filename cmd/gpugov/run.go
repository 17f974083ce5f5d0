package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/worldland/gpugov/internal/adapters/nvml"
	"github.com/worldland/gpugov/internal/api"
	"github.com/worldland/gpugov/internal/config"
	"github.com/worldland/gpugov/internal/domain"
	"github.com/worldland/gpugov/internal/dvfs"
	"github.com/worldland/gpugov/internal/queue"
	"github.com/worldland/gpugov/internal/services"
)

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	configPath string
	governor   string
	mock       bool
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "Govern the GPU clock and serve the status endpoint."
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return `run [options] - Sample GPU utilization and lock the graphics clock chosen by the governor.

SIGUSR1 toggles assist mode, SIGUSR2 toggles the full-compute boost.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "Path to the YAML config file (defaults apply when empty).")
	f.StringVar(&r.governor, "governor", "", "Override the configured start-up governor.")
	f.BoolVar(&r.mock, "mock", false, "Drive a mock GPU instead of NVML.")
}

// Execute implements subcommands.Command.Execute.
func (r *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(r.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return subcommands.ExitUsageError
	}
	if r.governor != "" {
		cfg.Governor = r.governor
	}
	logger := setupLogger(cfg.Log)

	if err := run(ctx, cfg, r.configPath, newGPUProvider(cfg, r.mock), logger); err != nil {
		logger.Error("governor stopped", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// newGPUProvider opens the configured device, or a mock replaying a
// synthetic load trace
func newGPUProvider(cfg config.Config, mock bool) domain.GPUProvider {
	if mock {
		return nvml.NewMockGPUProvider(domain.DeviceInfo{
			UUID:        "mock-gpu-0",
			Name:        "Mock GPU",
			MaxClockMHz: cfg.MaxClock,
		}, syntheticTrace())
	}
	return nvml.NewNVMLProvider(cfg.Device)
}

// syntheticTrace is a repeating load ramp for the mock GPU; the mock holds
// the last value once the trace is consumed
func syntheticTrace() []int {
	trace := make([]int, 0, 200)
	for i := range 200 {
		trace = append(trace, (i*7)%101)
	}
	return trace
}

// run drives the daemon and the status server until ctx is done. configPath
// is re-read on SIGHUP to update clock limits and locks.
func run(ctx context.Context, cfg config.Config, configPath string, gpu domain.GPUProvider, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var assist, fullCompute domain.Flag
	poll := domain.NewPollInterval(cfg.PollInterval)
	residency := dvfs.NewTimeInState()

	dispatcher, err := cfg.NewDispatcher(dvfs.Hooks{
		Estimator:   residency,
		AssistMode:  &assist,
		FullCompute: &fullCompute,
		Poll:        poll,
	}, logger)
	if err != nil {
		return err
	}

	tracker := queue.NewTracker(logger)
	daemon := services.NewGovernorDaemon(gpu, dispatcher, tracker, poll, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return daemon.Start(ctx)
	})
	g.Go(func() error {
		handleSignals(ctx, signalTargets{
			assist:      &assist,
			fullCompute: &fullCompute,
			dispatcher:  dispatcher,
			configPath:  configPath,
		}, logger)
		return nil
	})

	if cfg.Listen != "" {
		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.NewStatusHandler(dispatcher, daemon, residency, tracker).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("status endpoint listening", "addr", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// signalTargets are the knobs a running daemon exposes to signals
type signalTargets struct {
	assist      *domain.Flag
	fullCompute *domain.Flag
	dispatcher  *dvfs.Dispatcher
	configPath  string
}

// handleSignals flips assist mode on SIGUSR1 and the full-compute boost on
// SIGUSR2, and reloads clock limits and locks on SIGHUP, until ctx is done
func handleSignals(ctx context.Context, targets signalTargets, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				targets.assist.Set(!targets.assist.Enabled())
				logger.Info("assist mode toggled", "enabled", targets.assist.Enabled())
			case syscall.SIGUSR2:
				targets.fullCompute.Set(!targets.fullCompute.Enabled())
				logger.Info("full-compute boost toggled", "enabled", targets.fullCompute.Enabled())
			case syscall.SIGHUP:
				if err := reloadLimits(targets.configPath, targets.dispatcher); err != nil {
					logger.Warn("config reload failed", "error", err)
					continue
				}
				logger.Info("clock limits reloaded", "config", targets.configPath)
			}
		}
	}
}

// reloadLimits re-reads path and applies its clock limits and locks. The
// rest of the config only takes effect on restart.
func reloadLimits(path string, dispatcher *dvfs.Dispatcher) error {
	if path == "" {
		return errors.New("no config file to reload")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return cfg.ApplyLimits(dispatcher)
}
