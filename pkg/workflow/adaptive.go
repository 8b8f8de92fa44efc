package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/trace"
)

// adaptiveState enumerates the adaptive workflow's nodes.
type adaptiveState string

const (
	adaptiveLookup       adaptiveState = "lookup"
	adaptiveDisambiguate adaptiveState = "disambiguate"
	adaptiveProduce      adaptiveState = "produce"
	adaptiveEnd          adaptiveState = "end"
)

// adaptiveNext is the pure transition function. matches is the lookup
// result size, retries the disambiguation attempts consumed so far.
func adaptiveNext(state adaptiveState, matches, retries, maxRetries int) adaptiveState {
	switch state {
	case adaptiveLookup:
		switch {
		case matches == 1:
			return adaptiveProduce
		case matches > 1 && retries < maxRetries:
			return adaptiveDisambiguate
		default:
			// Zero matches, or ambiguity with the retry budget spent.
			return adaptiveEnd
		}
	case adaptiveDisambiguate:
		return adaptiveLookup
	case adaptiveProduce:
		return adaptiveEnd
	default:
		return adaptiveEnd
	}
}

// Adaptive is the conditional-routing workflow. Lookup results route the
// run: a unique match proceeds to production, ambiguity enters a bounded
// LLM disambiguation loop, absence ends the run.
type Adaptive struct {
	model    LanguageModel
	contacts ContactFinder
}

// NewAdaptive creates the adaptive workflow.
func NewAdaptive(model LanguageModel, contacts ContactFinder) *Adaptive {
	return &Adaptive{model: model, contacts: contacts}
}

func (w *Adaptive) Type() Type { return TypeAdaptive }

func (w *Adaptive) Describe() string {
	return `graph TD
    START((Start)) --> lookup[Lookup<br/>Contact Search]
    lookup -->|one match| produce[Produce<br/>Email Generation]
    lookup -->|ambiguous| disambiguate[Disambiguate<br/>LLM Resolution]
    lookup -->|not found / retries exhausted| END_NODE((End))
    disambiguate --> lookup
    produce --> END_NODE`
}

func (w *Adaptive) Run(ctx context.Context, task Task, params Parameters, rec *trace.Recorder) *RunResult {
	if rec == nil {
		rec = trace.NewRecorder()
	}
	runStart := time.Now()
	res := &RunResult{WorkflowType: TypeAdaptive}

	name := task.targetName()
	retries := 0
	var resolved directory.Contact
	var candidates []directory.Contact

	state := adaptiveLookup
	for state != adaptiveEnd {
		if ctx.Err() != nil {
			res.Retries = retries
			return cancelled(res, string(state), runStart)
		}

		switch state {
		case adaptiveLookup:
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			matches, err := w.contacts.Find(stepCtx, name)
			cancel()
			if err != nil {
				visit(rec, "lookup", start, trace.VisitFailed,
					map[string]any{"name": name}, map[string]any{"error": err.Error()})
				res.Retries = retries
				return fail(res, "lookup", ErrDirectoryUnavailable, err.Error(), runStart)
			}
			visit(rec, "lookup", start, trace.VisitSucceeded,
				map[string]any{"name": name},
				map[string]any{"matches": contactNames(matches)})

			next := adaptiveNext(state, len(matches), retries, params.MaxRetries)
			switch {
			case len(matches) == 1:
				resolved = matches[0]
			case len(matches) > 1:
				candidates = matches
				if next == adaptiveEnd {
					slog.Warn("disambiguation retries exhausted", "name", name, "attempts", retries)
					res.Retries = retries
					return fail(res, "lookup", ErrRetryExhausted,
						fmt.Sprintf("ambiguity unresolved after %d disambiguation attempts", retries), runStart)
				}
			default:
				res.Retries = retries
				return fail(res, "lookup", ErrNotFound,
					fmt.Sprintf("no contact matches %q", name), runStart)
			}
			state = next

		case adaptiveDisambiguate:
			retries++
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			var choice chosenCandidate
			err := w.model.GenerateStructured(stepCtx, disambiguationPrompt(task.Instruction, candidates), &choice)
			cancel()
			if err != nil {
				// The disambiguation loop is the one retry state, so a
				// collaborator failure here consumes an attempt and
				// loops instead of ending the run.
				visit(rec, "disambiguate", start, trace.VisitFailed,
					map[string]any{"attempt": retries}, map[string]any{"error": err.Error()})
				slog.Warn("disambiguation attempt failed", "attempt", retries, "error", err)
				state = adaptiveNext(state, 0, retries, params.MaxRetries)
				continue
			}
			visit(rec, "disambiguate", start, trace.VisitSucceeded,
				map[string]any{"attempt": retries, "candidates": contactNames(candidates)},
				map[string]any{"resolved_to": choice.Name})

			if resolvedName := strings.TrimSpace(choice.Name); resolvedName != "" && !strings.EqualFold(resolvedName, "none") {
				name = resolvedName
			}
			state = adaptiveNext(state, 0, retries, params.MaxRetries)

		case adaptiveProduce:
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			output, err := w.model.Generate(stepCtx, emailPrompt(resolved, task.Instruction))
			cancel()
			if err != nil {
				visit(rec, "produce", start, trace.VisitFailed,
					map[string]any{"contact": resolved.Name}, map[string]any{"error": err.Error()})
				res.Retries = retries
				return fail(res, "produce", classify(err), err.Error(), runStart)
			}
			visit(rec, "produce", start, trace.VisitSucceeded,
				map[string]any{"contact": resolved.Name}, map[string]any{"output": output})

			res.Status = StatusCompleted
			res.Output = output
			res.Contact = &resolved
			state = adaptiveNext(state, 0, retries, params.MaxRetries)
		}
	}

	res.Retries = retries
	res.Duration = time.Since(runStart)
	return res
}

func contactNames(contacts []directory.Contact) []string {
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.Name
	}
	return names
}
