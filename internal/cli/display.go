package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/worldland/gpugov/internal/api"
	"github.com/worldland/gpugov/internal/dvfs"
	"github.com/worldland/gpugov/internal/services"
)

// out is where the Print helpers write
var out io.Writer = os.Stdout

// PrintHeader prints a section header
func PrintHeader(title string) {
	fmt.Fprintf(out, "\n=== %s ===\n", title)
}

// PrintField prints a labeled field
func PrintField(label, value string) {
	fmt.Fprintf(out, "  %-14s %s\n", label+":", value)
}

// PrintStatus displays the status of a running daemon
func PrintStatus(s *api.StatusResponse) {
	g := s.Governor
	PrintHeader("Governor")
	PrintField("Governor", g.GovernorName)
	PrintField("Clock", fmt.Sprintf("%d (step %d of %d)", g.Clock, g.Step, g.TableSize))
	PrintField("Applied", fmt.Sprintf("%d", g.CurClock))
	PrintField("Utilization", fmt.Sprintf("%d%%", g.Utilization))
	PrintField("Range", fmt.Sprintf("%d - %d", g.MinClock, g.MaxClock))
	if g.UsingMaxLimitClock || g.MaxClockLimit != g.MaxClock {
		PrintField("Max limit", fmt.Sprintf("%d", g.MaxClockLimit))
	}
	if g.AssistMode {
		PrintField("Assist", "on")
	}

	if d := s.Daemon; d != nil {
		PrintHeader("Device")
		PrintField("UUID", d.Device.UUID)
		PrintField("Name", d.Device.Name)
		PrintField("Samples", fmt.Sprintf("%d (skipped %d, apply errors %d)", d.Samples, d.Skipped, d.ApplyErrors))
	}

	if q := s.Queue; q != nil {
		PrintHeader("Jobs")
		PrintField("Queued", fmt.Sprintf("%d", q.Counts.Queued))
		PrintField("Dispatched", fmt.Sprintf("%d", q.Counts.Dispatched))
		PrintField("HW active", q.ActiveTime.Hardware.String())
		PrintField("Both active", q.ActiveTime.Both.String())
	}

	if len(s.Residency) > 0 {
		PrintResidency(s.Residency)
	}
}

// PrintResidency displays time spent per clock as a table
func PrintResidency(residency []dvfs.Residency) {
	PrintHeader("Time in state")

	var total time.Duration
	for _, r := range residency {
		total += r.Time
	}

	fmt.Fprintf(out, "  %-10s %-14s %s\n", "Clock", "Time", "Share")
	fmt.Fprintf(out, "  %-10s %-14s %s\n", strings.Repeat("-", 10), strings.Repeat("-", 14), strings.Repeat("-", 6))
	for _, r := range residency {
		share := 0.0
		if total > 0 {
			share = 100 * float64(r.Time) / float64(total)
		}
		fmt.Fprintf(out, "  %-10d %-14s %5.1f%%\n", r.Clock, r.Time.Round(time.Millisecond), share)
	}
}

// PrintGovernors displays the governor registry
func PrintGovernors(governors []api.GovernorResponse) {
	PrintHeader(fmt.Sprintf("Governors (%d)", len(governors)))

	fmt.Fprintf(out, "  %-3s %-12s %-8s %s\n", "", "Name", "Start", "Clocks")
	for _, g := range governors {
		marker := ""
		if g.Active {
			marker = "*"
		}
		clocks := make([]string, len(g.Clocks))
		for i, c := range g.Clocks {
			clocks[i] = fmt.Sprintf("%d", c)
		}
		fmt.Fprintf(out, "  %-3s %-12s %-8d %s\n", marker, g.Name, g.StartClock, strings.Join(clocks, " "))
	}
}

// PrintTable displays an operating-point table
func PrintTable(name string, table dvfs.Table) {
	PrintHeader(fmt.Sprintf("%s table (%d levels)", name, len(table)))

	fmt.Fprintf(out, "  %-5s %-8s %-6s %-6s %s\n", "Step", "Clock", "Max%", "Min%", "Stay")
	for i, op := range table {
		fmt.Fprintf(out, "  %-5d %-8d %-6d %-6d %d\n", i, op.Clock, op.MaxThreshold, op.MinThreshold, op.DownStaycount)
	}
}

// PrintSimulationHeader prints the column header for simulation rows
func PrintSimulationHeader(governor string) {
	PrintHeader("Simulation: " + governor)
	fmt.Fprintf(out, "  %-6s %-6s %-8s %s\n", "Tick", "Util", "Clock", "Governor")
}

// PrintSimulationRow prints one simulated sample
func PrintSimulationRow(tick int, s services.Sample) {
	if s.Skipped {
		fmt.Fprintf(out, "  %-6d %-6s %-8d %s\n", tick, "off", s.Clock, s.Governor)
		return
	}
	fmt.Fprintf(out, "  %-6d %-6d %-8d %s\n", tick, s.Utilization, s.Clock, s.Governor)
}

// PrintStep prints a step in a multi-step process
func PrintStep(current, total int, message string) {
	fmt.Fprintf(out, "\n[%d/%d] %s\n", current, total, message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(out, "\nError: %s\n", message)
}
