// Package ui holds terminal styling for CLI output.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue: node identifiers
	colorLive   = 70  // green: live nodes and events
	colorMuted  = 245 // medium gray: stale or expired entries
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorAccent, s)
}

// RenderLive returns s in the live (green) color.
func RenderLive(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorLive, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
