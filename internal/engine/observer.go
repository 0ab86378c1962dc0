package engine

import (
	"fmt"
	"log"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events during plan, apply and destroy.
type Observer interface {
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)

	// WithFields returns an Observer that adds fields to every event.
	WithFields(fields map[string]string) Observer
}

// Event is one structured engine event.
type Event struct {
	Type      EventType
	Resource  string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType names an engine event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventValidationWarning EventType = "validation.warning"

	EventResourceCreating  EventType = "resource.creating"
	EventResourceCreated   EventType = "resource.created"
	EventResourceUpdating  EventType = "resource.updating"
	EventResourceUpdated   EventType = "resource.updated"
	EventResourceReplacing EventType = "resource.replacing"
	EventResourceDeleting  EventType = "resource.deleting"
	EventResourceDeleted   EventType = "resource.deleted"
	EventResourceUnchanged EventType = "resource.unchanged"
	EventResourceFailed    EventType = "resource.failed"
	EventResourceSkipped   EventType = "resource.skipped"
	EventResourceRetrying  EventType = "resource.retrying"

	EventStateSaved EventType = "state.saved"
)

// ConsoleObserver writes events through the standard log package.
type ConsoleObserver struct {
	contextFields map[string]string
}

// NewConsoleObserver creates a console observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{contextFields: make(map[string]string)}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	log.Print(formatEvent(mergeFields(event, o.contextFields)))
}

// WithFields implements Observer.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	return &ConsoleObserver{contextFields: withFields(o.contextFields, fields)}
}

// LogrObserver forwards events to a logr.Logger.
type LogrObserver struct {
	logger        logr.Logger
	contextFields map[string]string
}

// NewLogrObserver wraps logger.
func NewLogrObserver(logger logr.Logger) *LogrObserver {
	return &LogrObserver{logger: logger, contextFields: make(map[string]string)}
}

// Printf implements Observer.
func (o *LogrObserver) Printf(format string, v ...any) {
	o.logger.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *LogrObserver) Event(event Event) {
	event = mergeFields(event, o.contextFields)
	kv := []any{"event", string(event.Type)}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	for _, k := range sortedKeys(event.Fields) {
		kv = append(kv, k, event.Fields[k])
	}
	o.logger.Info(event.Message, kv...)
}

// WithFields implements Observer.
func (o *LogrObserver) WithFields(fields map[string]string) Observer {
	return &LogrObserver{logger: o.logger, contextFields: withFields(o.contextFields, fields)}
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Printf(string, ...any)                   {}
func (NopObserver) Event(Event)                             {}
func (n NopObserver) WithFields(map[string]string) Observer { return n }

func withFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

func mergeFields(event Event, ctx map[string]string) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]string, len(ctx))
	}
	for k, v := range ctx {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}
	return event
}

func formatEvent(event Event) string {
	parts := []string{string(event.Type)}
	if event.Resource != "" {
		parts = append(parts, "resource="+event.Resource)
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		fieldParts := make([]string, 0, len(event.Fields))
		for _, k := range sortedKeys(event.Fields) {
			fieldParts = append(fieldParts, k+"="+event.Fields[k])
		}
		parts = append(parts, "("+strings.Join(fieldParts, ", ")+")")
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resourceEvent(o Observer, t EventType, addr, format string, args ...any) {
	o.Event(Event{Type: t, Resource: addr, Message: fmt.Sprintf(format, args...)})
}
