package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/worldland/gpugov/internal/config"
	"github.com/worldland/gpugov/internal/domain"
)

// ComponentStatus represents the installation status of a required component
type ComponentStatus struct {
	Name      string
	Installed bool
	Version   string
}

// PreflightResult contains the results of the preflight check
type PreflightResult struct {
	Components []ComponentStatus
	OSId       string // "ubuntu", "debian", etc.
	OSVersion  string // "22.04", "12", etc.
	GPUFound   bool
	Device     domain.DeviceInfo
	// Problems lists everything that would stop the governor from running
	Problems []string
}

// RunPreflight checks the host tools, opens the GPU and checks the config
// against what the device reports
func RunPreflight(ctx context.Context, gpu domain.GPUProvider, cfg config.Config) *PreflightResult {
	result := &PreflightResult{}

	result.OSId, result.OSVersion = detectOS()
	result.Components = []ComponentStatus{
		checkComponent(ctx, "nvidia-smi", "--query-gpu=driver_version", "--format=csv,noheader"),
	}

	if err := cfg.Validate(); err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("config: %v", err))
	}

	if err := gpu.Init(); err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("GPU init: %v", err))
		return result
	}
	defer gpu.Shutdown()

	info, err := gpu.Info()
	if err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("device info: %v", err))
		return result
	}
	result.GPUFound = true
	result.Device = info

	if info.MaxClockMHz > 0 {
		if cfg.MaxClock > info.MaxClockMHz {
			result.Problems = append(result.Problems,
				fmt.Sprintf("max_clock %d above device maximum %d MHz", cfg.MaxClock, info.MaxClockMHz))
		}
		if len(cfg.Table) > 0 && cfg.Table[0].Clock > info.MaxClockMHz {
			result.Problems = append(result.Problems,
				fmt.Sprintf("table starts at %d, above device maximum %d MHz", cfg.Table[0].Clock, info.MaxClockMHz))
		}
	}
	if !gpu.PoweredOn() {
		result.Problems = append(result.Problems, "device reports no performance state")
	}
	if _, err := gpu.Utilization(ctx); err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("utilization: %v", err))
	}

	return result
}

// OK reports whether no problem was found
func (r *PreflightResult) OK() bool {
	return len(r.Problems) == 0
}

// MissingComponents returns the names of components that are not installed
func (r *PreflightResult) MissingComponents() []string {
	var missing []string
	for _, c := range r.Components {
		if !c.Installed {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// PrintStatus prints the preflight check results
func (r *PreflightResult) PrintStatus(w io.Writer) {
	for _, c := range r.Components {
		if c.Installed {
			fmt.Fprintf(w, "  ✓ %s: %s\n", c.Name, c.Version)
		} else {
			fmt.Fprintf(w, "  ✗ %s: NOT INSTALLED\n", c.Name)
		}
	}
	fmt.Fprintf(w, "  OS: %s %s\n", r.OSId, r.OSVersion)
	if r.GPUFound {
		fmt.Fprintf(w, "  GPU: %s (%s), max %d MHz\n", r.Device.Name, r.Device.UUID, r.Device.MaxClockMHz)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  ✗ %s\n", p)
	}
}

func checkComponent(ctx context.Context, binary string, versionArgs ...string) ComponentStatus {
	cs := ComponentStatus{Name: binary}

	if _, err := exec.LookPath(binary); err != nil {
		return cs
	}

	out, err := exec.CommandContext(ctx, binary, versionArgs...).Output()
	if err != nil {
		// binary exists but the version query failed; still installed
		cs.Installed = true
		cs.Version = "(version unknown)"
		return cs
	}

	cs.Installed = true
	// Take first line if multiple GPUs
	cs.Version = strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	// Truncate long version strings
	if len(cs.Version) > 60 {
		cs.Version = cs.Version[:60]
	}
	return cs
}

func detectOS() (id, version string) {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "unknown", ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ID=") {
			id = strings.Trim(strings.TrimPrefix(line, "ID="), "\"")
		}
		if strings.HasPrefix(line, "VERSION_ID=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), "\"")
		}
	}
	return id, version
}
