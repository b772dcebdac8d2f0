package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/authgate/pkg/boundary"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorMuted   = lipgloss.Color("#7f849c")
	colorText    = lipgloss.Color("#cdd6f4")
	colorArmed   = lipgloss.Color("#fab387")
	colorReady   = lipgloss.Color("#f9e2af")
	colorGranted = lipgloss.Color("#a6e3a1")
	colorDenied  = lipgloss.Color("#f38ba8")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// StateColor is the badge color for s.
func StateColor(s domain.State) lipgloss.Color {
	switch s {
	case domain.StateArmed:
		return colorArmed
	case domain.StateReady:
		return colorReady
	case domain.StateAuthorized:
		return colorGranted
	case domain.StateExpired, domain.StateRejected:
		return colorDenied
	default:
		return colorText
	}
}

// ProgressBar renders fraction in [0,1] as a bar of width cells.
func ProgressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// RenderView draws the read-only view of an action.
func RenderView(v boundary.View) string {
	badge := lipgloss.NewStyle().Bold(true).Foreground(StateColor(v.State)).Render(strings.ToUpper(string(v.State)))
	muted := lipgloss.NewStyle().Foreground(colorMuted)

	lines := []string{
		badge + muted.Render("  "+v.ActionID),
		lipgloss.NewStyle().Foreground(colorText).Render(v.Preview),
		muted.Render(fmt.Sprintf("context %s @ %s", v.Context.ID, short(v.Context.SourceHash))),
	}
	if v.Confidence != nil {
		lines = append(lines, muted.Render(fmt.Sprintf("confidence %.0f%% (advisory)", *v.Confidence*100)))
	}
	if v.Holding || v.HoldProgress > 0 {
		lines = append(lines, fmt.Sprintf("hold %s %3.0f%%", ProgressBar(v.HoldProgress, 20), v.HoldProgress*100))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
