// Package ui renders plans, execution results, and history for the drift
// CLI, and owns the confirmation prompts. Rendering returns strings so the
// command layer decides where output goes.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"drift/internal/plan"
)

// Risk palette. Blocked shares the high color but renders bold so a
// refused plan is visually louder than a merely dangerous one.
var (
	ColorLow     = lipgloss.Color("#8BC34A") // green
	ColorMedium  = lipgloss.Color("#FFC107") // yellow
	ColorHigh    = lipgloss.Color("#e53935") // red
	ColorMuted   = lipgloss.Color("#808080")
	ColorInfo    = lipgloss.Color("#2196F3") // blue
	ColorCommand = lipgloss.Color("#4db6ac") // teal
)

// Styles holds the styled components used by the renderers.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Command lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	RiskLow     lipgloss.Style
	RiskMedium  lipgloss.Style
	RiskHigh    lipgloss.Style
	RiskBlocked lipgloss.Style
}

// NewStyles builds the default style set.
func NewStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Bold:    lipgloss.NewStyle().Bold(true),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		Command: lipgloss.NewStyle().Foreground(ColorCommand),

		Success: lipgloss.NewStyle().Foreground(ColorLow).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorHigh).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorMedium).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(ColorInfo),

		RiskLow:     lipgloss.NewStyle().Foreground(ColorLow),
		RiskMedium:  lipgloss.NewStyle().Foreground(ColorMedium),
		RiskHigh:    lipgloss.NewStyle().Foreground(ColorHigh),
		RiskBlocked: lipgloss.NewStyle().Foreground(ColorHigh).Bold(true),
	}
}

// RiskStyle returns the style for a risk tier.
func (s Styles) RiskStyle(r plan.Risk) lipgloss.Style {
	switch r {
	case plan.RiskMedium:
		return s.RiskMedium
	case plan.RiskHigh:
		return s.RiskHigh
	case plan.RiskBlocked:
		return s.RiskBlocked
	default:
		return s.RiskLow
	}
}

// RiskBadge renders a compact marker plus the uppercased tier name.
func (s Styles) RiskBadge(r plan.Risk) string {
	marker := map[plan.Risk]string{
		plan.RiskLow:     "✓",
		plan.RiskMedium:  "⚡",
		plan.RiskHigh:    "⚠",
		plan.RiskBlocked: "✗",
	}[r]
	label := fmt.Sprintf("%s %s", marker, strings.ToUpper(r.String()))
	return s.RiskStyle(r).Render(label)
}

// Message helpers used across commands.

func (s Styles) Errorf(format string, args ...interface{}) string {
	return s.Error.Render("Error: ") + fmt.Sprintf(format, args...)
}

func (s Styles) Warningf(format string, args ...interface{}) string {
	return s.Warning.Render("Warning: ") + fmt.Sprintf(format, args...)
}

func (s Styles) Successf(format string, args ...interface{}) string {
	return s.Success.Render("✓ ") + fmt.Sprintf(format, args...)
}

func (s Styles) Infof(format string, args ...interface{}) string {
	return s.Info.Render("ℹ ") + fmt.Sprintf(format, args...)
}
