package tui

import (
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/stackforge/internal/engine"
)

// Observer feeds engine events into a progress view. Until the engine
// starts a run, and after Finish, everything goes to the base observer so
// that plan rendering and confirmation prompts keep the terminal.
type Observer struct {
	base engine.Observer
	view *view
}

// view is the program shared by an Observer and those derived from it.
type view struct {
	model Model
	opts  []tea.ProgramOption

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	final   Model
	runErr  error
}

// NewObserver returns an Observer that starts the progress view with m on
// the first run.started event.
func NewObserver(base engine.Observer, m Model, opts ...tea.ProgramOption) *Observer {
	return &Observer{base: base, view: &view{model: m, opts: opts}}
}

// Printf implements engine.Observer.
func (o *Observer) Printf(format string, v ...any) {
	if p := o.view.running(); p != nil {
		p.Send(LogMsg{Line: fmt.Sprintf(format, v...)})
		return
	}
	o.base.Printf(format, v...)
}

// Event implements engine.Observer.
func (o *Observer) Event(event engine.Event) {
	if event.Type == engine.EventRunStarted {
		o.view.start()
	}
	if p := o.view.running(); p != nil {
		p.Send(EventMsg{Event: event})
		return
	}
	o.base.Event(event)
}

// WithFields implements engine.Observer. The derived observer shares the
// progress view; fields only reach the base observer.
func (o *Observer) WithFields(fields map[string]string) engine.Observer {
	return &Observer{base: o.base.WithFields(fields), view: o.view}
}

// Started reports whether the progress view is running.
func (o *Observer) Started() bool {
	return o.view.running() != nil
}

// Finish stops the progress view, if it was started, and returns runErr
// joined with any error of the view itself.
func (o *Observer) Finish(runErr error) error {
	v := o.view
	v.mu.Lock()
	p, done := v.program, v.done
	v.mu.Unlock()
	if p == nil {
		return runErr
	}

	p.Send(DoneMsg{Err: runErr})
	<-done

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.runErr != nil {
		return errors.Join(runErr, fmt.Errorf("TUI error: %w", v.runErr))
	}
	return runErr
}

// Final returns the model the progress view ended with. It is the zero
// Model until Finish returned.
func (o *Observer) Final() Model {
	o.view.mu.Lock()
	defer o.view.mu.Unlock()
	return o.view.final
}

func (v *view) running() *tea.Program {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done == nil {
		return nil
	}
	select {
	case <-v.done:
		return nil
	default:
		return v.program
	}
}

func (v *view) start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.program != nil {
		return
	}
	p := tea.NewProgram(v.model, v.opts...)
	done := make(chan struct{})
	v.program, v.done = p, done
	go func() {
		defer close(done)
		final, err := p.Run()
		v.mu.Lock()
		defer v.mu.Unlock()
		if m, ok := final.(Model); ok {
			v.final = m
		}
		v.runErr = err
	}()
}
