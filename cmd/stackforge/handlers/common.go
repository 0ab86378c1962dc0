package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr/funcr"
	"github.com/mattn/go-isatty"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/orchestration"
	"github.com/imamik/stackforge/internal/platform/awsprovider"
	"github.com/imamik/stackforge/internal/ui/tui"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Options carries the flags shared by the stateful commands.
type Options struct {
	ConfigPath  string
	LogFormat   string
	LockMode    string
	MetricsFile string
	Refresh     bool
	Yes         bool
}

// Factory functions for dependency injection in tests.
var (
	loadConfig                = config.Load
	loadTimeouts              = config.LoadTimeouts
	newDependencies           = awsDependencies
	stdout          io.Writer = os.Stdout
	stderr          io.Writer = os.Stderr
	interactive               = isInteractiveTTY
	confirmPrompt             = promptConfirm
	newProgress               = func(base engine.Observer, m tui.Model) progressObserver {
		return tui.NewObserver(base, m, tea.WithOutput(stdout))
	}
)

// progressObserver shows a run as it happens and is stopped with Finish.
type progressObserver interface {
	engine.Observer
	Finish(runErr error) error
}

// progress asks setup for a progress view titled after verb. cancel is
// called when the user interrupts the view.
type progress struct {
	verb   string
	cancel context.CancelFunc
}

func awsDependencies(ctx context.Context, env config.Environment, timeouts *config.Timeouts, observer engine.Observer) (orchestration.Dependencies, error) {
	return orchestration.NewAWSDependencies(ctx, env, orchestration.AWSOptions{
		Session: awsprovider.Session{
			Region:   env.Region,
			Profile:  os.Getenv("AWS_PROFILE"),
			Endpoint: os.Getenv("STACKFORGE_AWS_ENDPOINT"),
		},
		CloudflareToken: os.Getenv("CLOUDFLARE_API_TOKEN"),
		Timeouts:        timeouts,
		Observer:        observer,
	})
}

func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func newObserver(format string) (engine.Observer, error) {
	switch format {
	case "", LogFormatText:
		return engine.NewConsoleObserver(), nil
	case LogFormatJSON:
		logger := funcr.NewJSON(func(obj string) { fmt.Fprintln(stderr, obj) }, funcr.Options{LogTimestamp: true})
		return engine.NewLogrObserver(logger), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected %s or %s)", format, LogFormatText, LogFormatJSON)
	}
}

// run is one wired command invocation.
type run struct {
	env      config.Environment
	stack    *orchestration.Stack
	metrics  *engine.Metrics
	progress progressObserver
	opts     Options
}

// setup loads the environment and wires the stack. confirm, when non-nil,
// builds the hook that gates mutating runs. pv, when non-nil, routes the
// engine's events to a progress view on an interactive text terminal.
func setup(ctx context.Context, opts Options, confirm func(*run) orchestration.ConfirmFunc, pv *progress) (*run, error) {
	env, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LockMode != "" {
		env.Backend.LockMode = config.LockMode(opts.LockMode)
		if err := env.Validate(); err != nil {
			return nil, err
		}
	}

	observer, err := newObserver(opts.LogFormat)
	if err != nil {
		return nil, err
	}
	observer = observer.WithFields(map[string]string{"project": env.QualifiedProject()})

	r := &run{env: env, opts: opts}
	if pv != nil && opts.LogFormat != LogFormatJSON && interactive() {
		r.progress = newProgress(observer, tui.NewModel(pv.verb, r.title(pv.verb), pv.cancel))
		observer = r.progress
	}

	timeouts := loadTimeouts()
	deps, err := newDependencies(ctx, env, timeouts, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS clients: %w", err)
	}
	if opts.MetricsFile != "" {
		r.metrics = engine.NewMetrics()
	}
	stackOpts := []orchestration.Option{
		orchestration.WithObserver(observer),
		orchestration.WithMetrics(r.metrics),
		orchestration.WithTimeouts(timeouts),
		orchestration.WithRefresh(opts.Refresh),
	}
	if confirm != nil {
		stackOpts = append(stackOpts, orchestration.WithConfirm(confirm(r)))
	}
	r.stack = orchestration.New(env, deps, stackOpts...)
	return r, nil
}

// endProgress stops the progress view, if any, and returns err.
func (r *run) endProgress(err error) error {
	if r.progress == nil {
		return err
	}
	return r.progress.Finish(err)
}

// finish writes the metrics textfile, if requested, and returns err.
func (r *run) finish(err error) error {
	if r.metrics == nil {
		return err
	}
	if werr := r.metrics.WriteTextfile(r.opts.MetricsFile); werr != nil {
		return errors.Join(err, fmt.Errorf("failed to write metrics: %w", werr))
	}
	return err
}

func (r *run) title(verb string) string {
	return fmt.Sprintf("%s %s (%s)", verb, r.env.QualifiedProject(), r.env.Region)
}
