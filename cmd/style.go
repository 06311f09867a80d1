package cmd

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)
