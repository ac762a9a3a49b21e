// SPDX-License-Identifier: MPL-2.0

// Package report renders run summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chr1043086360/envmatrix/internal/orchestrator"
)

// Color palette for summary output, tuned for dark terminal backgrounds.
const (
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	passedStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	skippedStyle = lipgloss.NewStyle().Foreground(colorWarning)
	notRunStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	detailStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

// ConsoleReporter writes a human-readable run summary.
type ConsoleReporter struct {
	// Out is the destination stream.
	Out io.Writer
	// Plain disables styling, for non-TTY output.
	Plain bool
}

// Write renders the summary: one line per environment plus a totals line.
func (r *ConsoleReporter) Write(summary *orchestrator.Summary) error {
	if _, err := fmt.Fprintln(r.Out, r.render(titleStyle, "summary")); err != nil {
		return err
	}
	for _, res := range summary.Results {
		line := fmt.Sprintf("  %s: %s", res.Name, r.renderStatus(res.Status))
		if res.Status == orchestrator.StatusPassed || res.Status == orchestrator.StatusFailed {
			line += r.render(detailStyle, fmt.Sprintf(" (%s)", formatDuration(res.Duration)))
		}
		if res.FailedCommand != "" {
			line += "\n" + r.render(detailStyle, fmt.Sprintf("    command failed: %s", res.FailedCommand))
		}
		if res.Err != nil && res.FailedCommand == "" && res.Status != orchestrator.StatusPassed {
			line += "\n" + r.render(detailStyle, fmt.Sprintf("    %v", res.Err))
		}
		if _, err := fmt.Fprintln(r.Out, line); err != nil {
			return err
		}
	}

	counts := summary.Counts()
	totals := fmt.Sprintf("  %d passed, %d failed, %d skipped, %d not run in %s",
		counts[orchestrator.StatusPassed],
		counts[orchestrator.StatusFailed],
		counts[orchestrator.StatusSkipped],
		counts[orchestrator.StatusNotRun],
		formatDuration(summary.Duration))
	_, err := fmt.Fprintln(r.Out, totals)
	return err
}

func (r *ConsoleReporter) renderStatus(status orchestrator.Status) string {
	switch status {
	case orchestrator.StatusPassed:
		return r.render(passedStyle, string(status))
	case orchestrator.StatusFailed:
		return r.render(failedStyle, string(status))
	case orchestrator.StatusSkipped:
		return r.render(skippedStyle, string(status))
	default:
		return r.render(notRunStyle, string(status))
	}
}

func (r *ConsoleReporter) render(style lipgloss.Style, s string) string {
	if r.Plain {
		return s
	}
	return style.Render(s)
}

// formatDuration rounds to a display-friendly precision.
func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Millisecond).String()
}
