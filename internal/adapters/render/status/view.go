package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/editor-relay/internal/application"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Endpoint string
	// WarnAt is the share of the idle timeout after which the oldest idle
	// session is flagged. Zero means 0.8.
	WarnAt float64
}

const idleBarWidth = 24

func renderView(stats application.Stats, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Editor Relay")}
	if opts.Endpoint != "" {
		lines = append(lines, s.header.Render("endpoint: "+opts.Endpoint))
	}
	lines = append(lines, s.header.Render("uptime: "+formatDuration(stats.Uptime)))

	if stats.Sessions == 0 {
		lines = append(lines, s.section.Render(s.empty.Render("No active sessions.")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	body := []string{
		countLine("sessions:", stats.Sessions, s),
		countLine("waiting:", stats.Waiters, s),
		idleLine(stats, opts, s),
	}
	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, body...)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func countLine(label string, n int, s styles) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render(label), " ", s.detail.Render(fmt.Sprintf("%d", n)))
}

func idleLine(stats application.Stats, opts RenderOptions, s styles) string {
	label := s.key.Render("oldest idle:")
	if stats.Sessions == stats.Waiters {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.detail.Render("n/a (every session has a waiter)"))
	}

	used := idlePercent(stats.OldestIdle, stats.IdleTimeout)
	bar := renderProgressBar(used, idleBarWidth, s)

	idleStyle := lipgloss.NewStyle().Foreground(interpolateColor(used, 0, 100))
	meta := idleStyle.Render(fmt.Sprintf("%s of %s", formatDuration(stats.OldestIdle), formatDuration(stats.IdleTimeout)))
	eviction := s.meta.Render(fmt.Sprintf("(%s)", formatEviction(stats.IdleTimeout-stats.OldestIdle)))

	line := lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta, " ", eviction)

	warnAt := opts.WarnAt
	if warnAt <= 0 {
		warnAt = 0.8
	}
	if used >= warnAt*100 {
		line += " " + s.warning.Render("[evicting soon]")
	}

	return line
}

func idlePercent(idle, timeout time.Duration) float64 {
	if timeout <= 0 {
		return 0
	}
	return clampPercent(100 * idle.Seconds() / timeout.Seconds())
}

// renderProgressBar fills the bar in proportion to usedPercent.
func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	filled := int(math.Round(float64(width) * used / 100.0))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	fillSegment := s.barFill.Render(strings.Repeat("=", filled))
	emptySegment := s.barEmpty.Render(strings.Repeat("-", width-filled))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fillSegment,
		emptySegment,
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatEviction(remaining time.Duration) string {
	if remaining <= 0 {
		return "evicted on next sweep"
	}
	return "evicted in " + formatDuration(remaining)
}

// formatDuration renders d at minute precision above an hour and second
// precision below.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d / time.Minute)
		seconds := int((d % time.Minute) / time.Second)
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	}

	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours >= 24 {
		return fmt.Sprintf("%dd%02dh", hours/24, hours%24)
	}
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}

// interpolateColor maps value onto the 256-colour greyscale ramp, faded at
// min and bright at max.
func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}
