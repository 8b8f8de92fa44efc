package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/trace"
)

var (
	// ErrRunNotFound means no run exists for the given handle.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunActive means the run has not reached a terminal state yet.
	ErrRunActive = errors.New("run still active")
)

// RunState is the lifecycle state of a run as seen through the engine.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Run is one tracked workflow execution.
type Run struct {
	ID           string
	WorkflowType Type
	Task         Task
	StartedAt    time.Time

	recorder *trace.Recorder
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.RWMutex
	result *RunResult
}

// State derives the lifecycle state from the stored result.
func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return RunRunning
	}
	switch r.result.Status {
	case StatusCompleted:
		return RunCompleted
	case StatusCancelled:
		return RunCancelled
	default:
		return RunFailed
	}
}

func (r *Run) setResult(res *RunResult) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	close(r.done)
}

// Snapshot is a point-in-time view of a run for polling callers.
type Snapshot struct {
	ID           string            `json:"id"`
	WorkflowType Type              `json:"workflow_type"`
	State        RunState          `json:"state"`
	StartedAt    time.Time         `json:"started_at"`
	Trace        []trace.NodeVisit `json:"trace"`
}

// Engine starts workflow runs and tracks them to completion. Runs are
// independent and execute in parallel against the shared collaborators;
// the engine itself holds no cross-run state beyond the registry.
type Engine struct {
	model    LanguageModel
	contacts ContactFinder
	defaults config.EngineConfig

	mu        sync.RWMutex
	runs      map[string]*Run
	observers []trace.Observer
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(model LanguageModel, contacts ContactFinder, defaults config.EngineConfig) *Engine {
	return &Engine{
		model:    model,
		contacts: contacts,
		defaults: defaults,
		runs:     make(map[string]*Run),
	}
}

// Observe registers an observer receiving every NodeVisit of every run
// started afterwards. This is the integration point for push transports
// and metrics.
func (e *Engine) Observe(observer trace.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// Start launches a run asynchronously and returns its handle. The run
// detaches from the caller's context; use Cancel to stop it.
func (e *Engine) Start(t Type, task Task, params Parameters) (string, error) {
	wf, err := New(t, e.model, e.contacts)
	if err != nil {
		return "", err
	}
	params.SetDefaults(&e.defaults)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.RLock()
	observers := make([]trace.Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.RUnlock()

	run := &Run{
		ID:           id,
		WorkflowType: t,
		Task:         task,
		StartedAt:    time.Now(),
		recorder:     trace.NewRecorder(observers...),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	e.mu.Lock()
	e.runs[id] = run
	e.mu.Unlock()

	go func() {
		defer cancel()
		slog.Info("run started", "run_id", id, "workflow", t)
		result := wf.Run(ctx, task, params, run.recorder)
		run.setResult(result)
		slog.Info("run finished", "run_id", id, "workflow", t,
			"status", result.Status, "duration", result.Duration)
	}()

	return id, nil
}

// Poll returns the run's current state and the trace recorded so far.
func (e *Engine) Poll(id string) (*Snapshot, error) {
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:           run.ID,
		WorkflowType: run.WorkflowType,
		State:        run.State(),
		StartedAt:    run.StartedAt,
		Trace:        run.recorder.Visits(),
	}, nil
}

// Result returns the run's final result, or ErrRunActive before terminal.
func (e *Engine) Result(id string) (*RunResult, error) {
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	run.mu.RLock()
	defer run.mu.RUnlock()
	if run.result == nil {
		return nil, ErrRunActive
	}
	return run.result, nil
}

// Wait blocks until the run is terminal or ctx expires.
func (e *Engine) Wait(ctx context.Context, id string) (*RunResult, error) {
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
		return e.Result(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation of a run. The run stops before its next
// state transition; a run that is already terminal is left untouched.
func (e *Engine) Cancel(id string) error {
	run, err := e.run(id)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// Subscribe attaches an observer to one run's subsequent NodeVisits.
func (e *Engine) Subscribe(id string, observer trace.Observer) error {
	run, err := e.run(id)
	if err != nil {
		return err
	}
	run.recorder.Subscribe(observer)
	return nil
}

// Done returns a channel closed when the run reaches a terminal state.
func (e *Engine) Done(id string) (<-chan struct{}, error) {
	run, err := e.run(id)
	if err != nil {
		return nil, err
	}
	return run.done, nil
}

// Describe returns the Mermaid definition of a workflow's state graph.
func (e *Engine) Describe(t Type) (string, error) {
	wf, err := New(t, e.model, e.contacts)
	if err != nil {
		return "", err
	}
	return wf.Describe(), nil
}

func (e *Engine) run(id string) (*Run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}
