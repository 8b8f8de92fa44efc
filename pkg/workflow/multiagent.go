package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadenlabs/agentbench/pkg/trace"
)

// multiAgentState enumerates the supervisor-delegation workflow's nodes.
type multiAgentState string

const (
	maSupervisor multiAgentState = "supervisor"
	maResearch   multiAgentState = "research"
	maReasoning  multiAgentState = "reasoning"
	maAction     multiAgentState = "action"
	maSynthesize multiAgentState = "synthesize"
	maEnd        multiAgentState = "end"
)

// phaseOrder is the fixed delegation sequence. The supervisor never makes
// a data-dependent choice; it walks this list.
var phaseOrder = []multiAgentState{maResearch, maReasoning, maAction, maSynthesize}

// multiAgentNext is the pure transition function. delegated counts phases
// the supervisor has already dispatched.
func multiAgentNext(state multiAgentState, delegated int) multiAgentState {
	switch state {
	case maSupervisor:
		if delegated >= len(phaseOrder) {
			return maEnd
		}
		return phaseOrder[delegated]
	case maResearch, maReasoning, maAction:
		return maSupervisor
	default:
		return maEnd
	}
}

// MultiAgent is the supervisor-delegation workflow. Specialist phases run
// in a fixed order, each returning control to the supervisor, and a final
// synthesis combines whatever phase outputs are available. Phase failures
// are recorded, not fatal.
type MultiAgent struct {
	model LanguageModel
}

// NewMultiAgent creates the supervisor-delegation workflow.
func NewMultiAgent(model LanguageModel) *MultiAgent {
	return &MultiAgent{model: model}
}

func (w *MultiAgent) Type() Type { return TypeMultiAgent }

func (w *MultiAgent) Describe() string {
	return `graph TD
    START((Start)) --> supervisor[Supervisor<br/>Phase Sequencer]
    supervisor -->|research| research[Research Agent<br/>Information Gathering]
    supervisor -->|reasoning| reasoning[Reasoning Agent<br/>Analysis]
    supervisor -->|action| action[Action Agent<br/>Task Execution]
    supervisor -->|synthesize| synthesize[Synthesizer<br/>Final Output]
    research --> supervisor
    reasoning --> supervisor
    action --> supervisor
    synthesize --> END_NODE((End))`
}

func (w *MultiAgent) Run(ctx context.Context, task Task, params Parameters, rec *trace.Recorder) *RunResult {
	if rec == nil {
		rec = trace.NewRecorder()
	}
	runStart := time.Now()
	res := &RunResult{WorkflowType: TypeMultiAgent}

	query := task.Instruction
	outputs := map[multiAgentState]string{}
	delegated := 0

	state := maSupervisor
	for state != maEnd {
		if ctx.Err() != nil {
			return cancelled(res, string(state), runStart)
		}

		switch state {
		case maSupervisor:
			start := time.Now()
			next := multiAgentNext(state, delegated)
			res.Messages = append(res.Messages, AgentMessage{
				From:    "supervisor",
				To:      string(next),
				Content: fmt.Sprintf("Activating %s phase", next),
				At:      time.Now(),
			})
			visit(rec, "supervisor", start, trace.VisitSucceeded,
				map[string]any{"delegated": delegated},
				map[string]any{"next_phase": string(next)})
			delegated++
			state = next

		case maResearch, maReasoning, maAction:
			phase := state
			start := time.Now()
			stepCtx, cancel := stepContext(ctx, params)
			output, err := w.model.Generate(stepCtx, w.phasePrompt(phase, query, outputs))
			cancel()
			if err != nil {
				// Partial-failure tolerant: record the gap and let the
				// supervisor carry on to the remaining phases.
				visit(rec, string(phase), start, trace.VisitFailed,
					map[string]any{"query": query}, map[string]any{"error": err.Error()})
				slog.Warn("phase failed", "phase", phase, "error", err)
				res.MissingPhases = append(res.MissingPhases, string(phase))
				res.Messages = append(res.Messages, AgentMessage{
					From:    string(phase),
					To:      "supervisor",
					Content: fmt.Sprintf("%s phase failed: %v", phase, err),
					At:      time.Now(),
				})
			} else {
				outputs[phase] = output
				visit(rec, string(phase), start, trace.VisitSucceeded,
					map[string]any{"query": query}, map[string]any{"output": output})
				res.Messages = append(res.Messages, AgentMessage{
					From:    string(phase),
					To:      "supervisor",
					Content: fmt.Sprintf("%s complete", phase),
					At:      time.Now(),
				})
			}
			state = multiAgentNext(state, delegated)

		case maSynthesize:
			start := time.Now()
			prompt := synthesisPrompt(query, outputs[maResearch], outputs[maReasoning], outputs[maAction])
			stepCtx, cancel := stepContext(ctx, params)
			output, err := w.model.Generate(stepCtx, prompt)
			cancel()
			if err != nil {
				visit(rec, "synthesize", start, trace.VisitFailed,
					map[string]any{"query": query}, map[string]any{"error": err.Error()})
				return fail(res, "synthesize", classify(err), err.Error(), runStart)
			}
			visit(rec, "synthesize", start, trace.VisitSucceeded,
				map[string]any{"query": query}, map[string]any{"output": output})

			res.Status = StatusCompleted
			res.Output = output
			state = multiAgentNext(state, delegated)
		}
	}

	res.Duration = time.Since(runStart)
	return res
}

func (w *MultiAgent) phasePrompt(phase multiAgentState, query string, outputs map[multiAgentState]string) string {
	switch phase {
	case maResearch:
		return researchPrompt(query)
	case maReasoning:
		return reasoningPrompt(query, outputs[maResearch])
	default:
		return actionPrompt(query, outputs[maReasoning])
	}
}
