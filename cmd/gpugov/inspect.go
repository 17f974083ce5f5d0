package main

import (
	"context"
	"flag"
	"io"
	"log/slog"

	"github.com/google/subcommands"

	"github.com/worldland/gpugov/internal/api"
	"github.com/worldland/gpugov/internal/cli"
	"github.com/worldland/gpugov/internal/dvfs"
)

// governorsCmd implements subcommands.Command for the "governors" command.
type governorsCmd struct {
	configPath string
	addr       string
	table      string
}

// Name implements subcommands.Command.Name.
func (*governorsCmd) Name() string {
	return "governors"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*governorsCmd) Synopsis() string {
	return "List the governors and their operating-point tables."
}

// Usage implements subcommands.Command.Usage.
func (*governorsCmd) Usage() string {
	return `governors [options] - List governors from the config, or from a running daemon with -addr.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (g *governorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&g.configPath, "config", "", "Path to the YAML config file (defaults apply when empty).")
	f.StringVar(&g.addr, "addr", "", "Status endpoint of a running daemon, e.g. 127.0.0.1:9400.")
	f.StringVar(&g.table, "table", "", "Also print the table of this governor.")
}

// Execute implements subcommands.Command.Execute.
func (g *governorsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if g.addr != "" {
		return g.remote()
	}

	cfg, err := loadConfig(g.configPath)
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitUsageError
	}
	dispatcher, err := cfg.NewDispatcher(dvfs.Hooks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitFailure
	}

	cli.PrintGovernors(api.GovernorList(dispatcher))
	if g.table != "" {
		id, err := dvfs.ParseGovernor(g.table)
		if err != nil {
			cli.PrintError(err.Error())
			return subcommands.ExitUsageError
		}
		info := dispatcher.Governors()[id]
		cli.PrintTable(info.Name, info.Table)
	}
	return subcommands.ExitSuccess
}

func (g *governorsCmd) remote() subcommands.ExitStatus {
	client := cli.NewStatusClient(g.addr)

	governors, err := client.ListGovernors()
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitFailure
	}
	cli.PrintGovernors(governors)

	if g.table != "" {
		table, err := client.GetTable(g.table)
		if err != nil {
			cli.PrintError(err.Error())
			return subcommands.ExitFailure
		}
		cli.PrintTable(table.Governor, table.Table)
	}
	return subcommands.ExitSuccess
}

// statusCmd implements subcommands.Command for the "status" command.
type statusCmd struct {
	addr string
}

// Name implements subcommands.Command.Name.
func (*statusCmd) Name() string {
	return "status"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*statusCmd) Synopsis() string {
	return "Print the state of a running governor."
}

// Usage implements subcommands.Command.Usage.
func (*statusCmd) Usage() string {
	return `status [-addr host:port] - Print governor, device, job queue and time-in-state of a running daemon.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.addr, "addr", "127.0.0.1:9400", "Status endpoint of the running daemon.")
}

// Execute implements subcommands.Command.Execute.
func (s *statusCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	status, err := cli.NewStatusClient(s.addr).GetStatus()
	if err != nil {
		cli.PrintError(err.Error())
		return subcommands.ExitFailure
	}
	cli.PrintStatus(status)
	return subcommands.ExitSuccess
}
