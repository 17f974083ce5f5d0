package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/worldland/gpugov/internal/cli"
	"github.com/worldland/gpugov/internal/setup"
)

// checkCmd implements subcommands.Command for the "check" command.
type checkCmd struct {
	configPath string
	mock       bool
}

// Name implements subcommands.Command.Name.
func (*checkCmd) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*checkCmd) Synopsis() string {
	return "Check the host, the GPU and the config before running the governor."
}

// Usage implements subcommands.Command.Usage.
func (*checkCmd) Usage() string {
	return `check [options] - Verify NVML access and that the configured clocks fit the device.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Path to the YAML config file (defaults apply when empty).")
	f.BoolVar(&c.mock, "mock", false, "Check against a mock GPU instead of NVML.")
}

// Execute implements subcommands.Command.Execute.
func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cli.PrintStep(1, 2, "Loading config")
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitUsageError
	}

	cli.PrintStep(2, 2, "Checking device")
	result := setup.RunPreflight(ctx, newGPUProvider(cfg, c.mock), cfg)
	result.PrintStatus(os.Stdout)
	if !result.OK() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
