// Package ui holds the terminal styles shared by the CLI commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	pass    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyl = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	strike  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)
)

// Accent renders identifiers and headings.
func Accent(s string) string { return accent.Render(s) }

// Pass renders success output.
func Pass(s string) string { return pass.Render(s) }

// Warn renders warnings and conflict notices.
func Warn(s string) string { return warn.Render(s) }

// Err renders failures.
func Err(s string) string { return errStyl.Render(s) }

// Muted renders secondary detail such as dates and UIDs.
func Muted(s string) string { return muted.Render(s) }

// Done renders completed task titles.
func Done(s string) string { return strike.Render(s) }
