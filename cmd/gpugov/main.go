// Command gpugov runs the GPU clock governor and inspects a running one.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/lmittmann/tint"

	"github.com/worldland/gpugov/internal/config"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&simulateCmd{}, "")
	subcommands.Register(&checkCmd{}, "")
	subcommands.Register(&governorsCmd{}, "inspect")
	subcommands.Register(&statusCmd{}, "inspect")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// setupLogger installs a tint handler as the default logger
func setupLogger(cfg config.LogConfig) *slog.Logger {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: "15:04:05.000",
		NoColor:    cfg.NoColor,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads path, or validates the defaults when path is empty
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// shutdownTimeout bounds the status server's graceful shutdown
const shutdownTimeout = 5 * time.Second
