package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/trace"
)

// rigidState enumerates the fixed-plan workflow's nodes.
type rigidState string

const (
	rigidPlan    rigidState = "plan"
	rigidLookup  rigidState = "lookup"
	rigidProduce rigidState = "produce"
	rigidEnd     rigidState = "end"
)

// rigidNext is the pure transition function. The chain is strictly
// sequential; anything but a unique lookup match ends the run.
func rigidNext(state rigidState, matches int) rigidState {
	switch state {
	case rigidPlan:
		return rigidLookup
	case rigidLookup:
		if matches == 1 {
			return rigidProduce
		}
		return rigidEnd
	default:
		return rigidEnd
	}
}

// Rigid is the fixed-plan workflow. The plan is deterministic, lookup is
// substring-based with no disambiguation, and any ambiguity or absence
// fails the run on the spot. It exists as the control against Adaptive:
// the same ambiguous task fails here and succeeds there.
type Rigid struct {
	model    LanguageModel
	contacts ContactFinder
}

// NewRigid creates the fixed-plan workflow.
func NewRigid(model LanguageModel, contacts ContactFinder) *Rigid {
	return &Rigid{model: model, contacts: contacts}
}

func (w *Rigid) Type() Type { return TypeRigid }

func (w *Rigid) Describe() string {
	return `graph TD
    START((Start)) --> plan[Plan<br/>Fixed Step Sequence]
    plan --> lookup[Lookup<br/>Contact Search]
    lookup -->|one match| produce[Produce<br/>Email Generation]
    lookup -->|ambiguous / not found| END_NODE((End))
    produce --> END_NODE`
}

func (w *Rigid) Run(ctx context.Context, task Task, params Parameters, rec *trace.Recorder) *RunResult {
	if rec == nil {
		rec = trace.NewRecorder()
	}
	runStart := time.Now()
	res := &RunResult{WorkflowType: TypeRigid}

	name := task.targetName()
	var resolved directory.Contact

	state := rigidPlan
	for state != rigidEnd {
		if ctx.Err() != nil {
			return cancelled(res, string(state), runStart)
		}

		switch state {
		case rigidPlan:
			start := time.Now()
			steps := []string{
				fmt.Sprintf("lookup %q", name),
				fmt.Sprintf("produce email for %q", name),
			}
			visit(rec, "plan", start, trace.VisitSucceeded,
				map[string]any{"name": name}, map[string]any{"steps": steps})
			state = rigidNext(state, 0)

		case rigidLookup:
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			matches, err := w.contacts.FindContaining(stepCtx, name)
			cancel()
			if err != nil {
				visit(rec, "lookup", start, trace.VisitFailed,
					map[string]any{"name": name}, map[string]any{"error": err.Error()})
				return fail(res, "lookup", ErrDirectoryUnavailable, err.Error(), runStart)
			}
			visit(rec, "lookup", start, trace.VisitSucceeded,
				map[string]any{"name": name},
				map[string]any{"matches": contactNames(matches)})

			switch len(matches) {
			case 1:
				resolved = matches[0]
			case 0:
				return fail(res, "lookup", ErrNotFound,
					fmt.Sprintf("no contact matches %q", name), runStart)
			default:
				return fail(res, "lookup", ErrAmbiguous,
					fmt.Sprintf("ambiguous match for %q: %v", name, contactNames(matches)), runStart)
			}
			state = rigidNext(state, len(matches))

		case rigidProduce:
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			output, err := w.model.Generate(stepCtx, emailPrompt(resolved, task.Instruction))
			cancel()
			if err != nil {
				visit(rec, "produce", start, trace.VisitFailed,
					map[string]any{"contact": resolved.Name}, map[string]any{"error": err.Error()})
				return fail(res, "produce", classify(err), err.Error(), runStart)
			}
			visit(rec, "produce", start, trace.VisitSucceeded,
				map[string]any{"contact": resolved.Name}, map[string]any{"output": output})

			res.Status = StatusCompleted
			res.Output = output
			res.Contact = &resolved
			state = rigidNext(state, 0)
		}
	}

	res.Duration = time.Since(runStart)
	return res
}
