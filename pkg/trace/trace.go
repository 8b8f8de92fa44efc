// Package trace records workflow execution traces.
//
// Every node a workflow visits produces one NodeVisit. The trace is
// append-only and owned by the run that produced it; observers registered
// on the recorder get each visit as it lands, which is the only integration
// point a push transport needs.
package trace

import (
	"sync"
	"time"
)

// Status is the outcome of a single node visit.
type Status string

const (
	// VisitSucceeded means the node completed normally.
	VisitSucceeded Status = "succeeded"

	// VisitFailed means the node's work failed.
	VisitFailed Status = "failed"
)

// NodeVisit is one record in an execution trace.
type NodeVisit struct {
	// Node identifies the state-machine node, e.g. "lookup".
	Node string `json:"node"`

	Status Status `json:"status"`

	// Input and Output are snapshots of what the node saw and produced.
	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Observer receives each NodeVisit as it is recorded.
type Observer func(visit NodeVisit)

// Recorder accumulates NodeVisits for one run and fans them out to
// observers. Safe for concurrent use.
type Recorder struct {
	mu        sync.RWMutex
	visits    []NodeVisit
	observers []Observer
}

// NewRecorder creates a recorder with optional observers.
func NewRecorder(observers ...Observer) *Recorder {
	return &Recorder{observers: observers}
}

// Record appends a visit and notifies observers.
func (r *Recorder) Record(visit NodeVisit) {
	r.mu.Lock()
	r.visits = append(r.visits, visit)
	observers := r.observers
	r.mu.Unlock()

	for _, observer := range observers {
		observer(visit)
	}
}

// Subscribe adds an observer for subsequent visits.
func (r *Recorder) Subscribe(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// Visits returns a snapshot of the trace so far.
func (r *Recorder) Visits() []NodeVisit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeVisit, len(r.visits))
	copy(out, r.visits)
	return out
}

// Len returns the number of recorded visits.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visits)
}
