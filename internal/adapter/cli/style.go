// Package cli implements the interactive chat client: a line REPL that
// streams a turn from the relay and colorizes the tagged regions of the
// model's reasoning as they arrive.
package cli

import "github.com/charmbracelet/lipgloss"

// Adaptive colors so the palette reads on both light and dark terminals.
// NO_COLOR is respected automatically by lipgloss.
var (
	colorCode   = lipgloss.AdaptiveColor{Light: "#007a3d", Dark: "#00af5f"}
	colorOutput = lipgloss.AdaptiveColor{Light: "#b25000", Dark: "#ffaf00"}
	colorError  = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

var (
	StylePrompt = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	StyleReason = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	StyleCode   = lipgloss.NewStyle().Foreground(colorCode)
	StyleOutput = lipgloss.NewStyle().Foreground(colorOutput)
	StyleError  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	StyleCmd    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	StyleMuted  = lipgloss.NewStyle().Foreground(colorMuted)
)
