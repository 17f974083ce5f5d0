package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldland/gpugov/internal/config"
	"github.com/worldland/gpugov/internal/dvfs"
)

func TestParseTrace(t *testing.T) {
	trace, err := parseTrace(strings.NewReader("10, 50,95\n-1\t0 100\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 95, -1, 0, 100}, trace)

	_, err = parseTrace(strings.NewReader("10,abc"))
	assert.Error(t, err)

	_, err = parseTrace(strings.NewReader("101"))
	assert.Error(t, err)
}

func TestSimulate_DefaultGovernor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Governor = "Default"
	cfg.MaxClock, cfg.MinClock, cfg.StartClock = 800, 400, 600
	cfg.Table = dvfs.Table{
		{Clock: 800, MaxThreshold: 90, MinThreshold: 10, DownStaycount: 3},
		{Clock: 600, MaxThreshold: 85, MinThreshold: 15, DownStaycount: 3},
		{Clock: 400, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 3},
	}
	cfg.Interactive.HighspeedClock = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	samples, err := simulate(context.Background(), cfg, []int{95, 50, -1, 5, 5, 5, 5}, logger)
	require.NoError(t, err)
	require.Len(t, samples, 7)

	clocks := make([]int, len(samples))
	for i, s := range samples {
		clocks[i] = s.Clock
	}
	assert.Equal(t, []int{800, 800, 800, 800, 800, 600, 600}, clocks)
	assert.True(t, samples[2].Skipped)
	assert.Equal(t, 5, samples[3].Utilization)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "Interactive", cfg.Governor)
}

func TestReloadLimits(t *testing.T) {
	cfg := config.DefaultConfig()
	dispatcher, err := cfg.NewDispatcher(dvfs.Hooks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gpugov.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_clock_limit: 1305\nmin_clock_limit: 630\nmin_lock: 630\n"), 0o644))

	require.NoError(t, reloadLimits(path, dispatcher))
	snap := dispatcher.Snapshot()
	assert.Equal(t, 1305, snap.MaxClockLimit)
	assert.Equal(t, 630, snap.MinClockLimit)
	assert.Equal(t, 630, snap.MinLock)

	assert.Error(t, reloadLimits("", dispatcher))
	require.NoError(t, os.WriteFile(path, []byte("max_clock_limit: 100\n"), 0o644))
	assert.Error(t, reloadLimits(path, dispatcher))
	assert.Equal(t, 1305, dispatcher.Snapshot().MaxClockLimit, "a bad reload keeps the old limits")
}
