package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/worldland/gpugov/internal/adapters/nvml"
	"github.com/worldland/gpugov/internal/cli"
	"github.com/worldland/gpugov/internal/config"
	"github.com/worldland/gpugov/internal/domain"
	"github.com/worldland/gpugov/internal/dvfs"
	"github.com/worldland/gpugov/internal/services"
)

// simulateCmd implements subcommands.Command for the "simulate" command.
type simulateCmd struct {
	configPath string
	governor   string
	trace      string
	traceFile  string
}

// Name implements subcommands.Command.Name.
func (*simulateCmd) Name() string {
	return "simulate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*simulateCmd) Synopsis() string {
	return "Replay a utilization trace through a governor and print the chosen clocks."
}

// Usage implements subcommands.Command.Usage.
func (*simulateCmd) Usage() string {
	return `simulate [options] - Replay utilization samples (0-100) through a governor on a mock GPU.

Samples are separated by commas or whitespace; -1 marks a powered-off sample.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *simulateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "Path to the YAML config file (defaults apply when empty).")
	f.StringVar(&s.governor, "governor", "", "Governor to simulate (defaults to the configured one).")
	f.StringVar(&s.trace, "trace", "", "Inline utilization trace, e.g. 10,50,95.")
	f.StringVar(&s.traceFile, "trace-file", "", "File holding the utilization trace.")
}

// Execute implements subcommands.Command.Execute.
func (s *simulateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(s.configPath)
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitUsageError
	}
	if s.governor != "" {
		cfg.Governor = s.governor
	}
	logger := setupLogger(cfg.Log)

	var src io.Reader = strings.NewReader(s.trace)
	if s.traceFile != "" {
		f, err := os.Open(s.traceFile)
		if err != nil {
			cli.PrintError(err.Error())
			return subcommands.ExitFailure
		}
		defer f.Close()
		src = f
	}
	trace, err := parseTrace(src)
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitUsageError
	}
	if len(trace) == 0 {
		cli.PrintError("empty trace: pass -trace or -trace-file")
		return subcommands.ExitUsageError
	}

	samples, err := simulate(ctx, cfg, trace, logger)
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitFailure
	}

	cli.PrintSimulationHeader(cfg.Governor)
	for i, sample := range samples {
		cli.PrintSimulationRow(i, sample)
	}
	return subcommands.ExitSuccess
}

// powerOffSample marks a trace sample taken while the GPU is off
const powerOffSample = -1

// parseTrace reads utilization samples separated by commas or whitespace
func parseTrace(r io.Reader) ([]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	fields := strings.FieldsFunc(string(data), func(c rune) bool {
		return c == ',' || c == ' ' || c == '\n' || c == '\t' || c == '\r'
	})
	trace := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid sample %q: %w", field, err)
		}
		if v < powerOffSample || v > 100 {
			return nil, fmt.Errorf("sample %d outside 0-100", v)
		}
		trace = append(trace, v)
	}
	return trace, nil
}

// simulate drives a daemon on a mock GPU through trace, one tick per sample
func simulate(ctx context.Context, cfg config.Config, trace []int, logger *slog.Logger) ([]services.Sample, error) {
	utilization := make([]int, 0, len(trace))
	for _, v := range trace {
		if v != powerOffSample {
			utilization = append(utilization, v)
		}
	}
	gpu := nvml.NewMockGPUProvider(domain.DeviceInfo{UUID: "sim-gpu-0", Name: "Simulated GPU"}, utilization)

	dispatcher, err := cfg.NewDispatcher(dvfs.Hooks{}, logger)
	if err != nil {
		return nil, err
	}
	daemon := services.NewGovernorDaemon(gpu, dispatcher, nil, domain.NewPollInterval(cfg.PollInterval), logger)
	if err := daemon.Init(ctx); err != nil {
		return nil, err
	}

	samples := make([]services.Sample, 0, len(trace))
	for _, v := range trace {
		gpu.SetPowered(v != powerOffSample)
		sample, err := daemon.Tick(ctx)
		if err != nil {
			return samples, fmt.Errorf("%s: %w", cfg.Governor, err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
