package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	coralPink   = lipgloss.Color("#FFCCCB")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	dueStyle    = lipgloss.NewStyle().Foreground(coralPink).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(mintGreen)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedGray)
	cellStyle   = lipgloss.NewStyle().Foreground(brightWhite).Padding(0, 1)
)

// humanDuration renders d in days and hours, e.g. "3d4h" or "45m".
func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	days := d / (24 * time.Hour)
	hours := (d % (24 * time.Hour)) / time.Hour
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, (d%time.Hour)/time.Minute)
	default:
		return fmt.Sprintf("%dm", max(d/time.Minute, 1))
	}
}
