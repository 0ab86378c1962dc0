// Package tui provides a Bubble Tea-based progress view for apply and
// destroy runs.
package tui

import "github.com/imamik/stackforge/internal/engine"

// EventMsg carries one engine event.
type EventMsg struct {
	Event engine.Event
}

// LogMsg carries a free-form observer line.
type LogMsg struct {
	Line string
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// DoneMsg signals that the run returned. Err is the run's error, if any.
type DoneMsg struct {
	Err error
}
