package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent  = lipgloss.Color("#88C0D0")
	ColorSuccess = lipgloss.Color("#A3BE8C")
	ColorWarn    = lipgloss.Color("#EBCB8B")
)
