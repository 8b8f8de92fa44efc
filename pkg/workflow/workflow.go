// Package workflow implements the agent execution engine.
//
// Four workflow styles run a natural-language task to completion as a
// finite-state machine: adaptive conditional routing, a fixed sequential
// plan, supervisor delegation across specialist phases, and an iterative
// answer-refinement loop. Each workflow is an enum of states plus a pure
// transition function, so the routing logic is testable without touching
// any collaborator.
//
// Workflows depend on two external collaborators, a language model and a
// contact directory, consumed through the narrow interfaces defined here.
// Failures never escape a run: they surface as fields on RunResult.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/trace"
)

// Type identifies a workflow style.
type Type string

const (
	// TypeAdaptive routes conditionally on lookup results and resolves
	// ambiguity through a bounded LLM disambiguation loop.
	TypeAdaptive Type = "adaptive"

	// TypeRigid executes a fixed plan with no back-edges and no retries.
	TypeRigid Type = "rigid"

	// TypeMultiAgent sequences specialist phases under a supervisor.
	TypeMultiAgent Type = "multi_agent"

	// TypeRecursive refines an answer until a confidence target is met.
	TypeRecursive Type = "recursive"
)

// AllTypes lists the supported workflow types.
func AllTypes() []Type {
	return []Type{TypeAdaptive, TypeRigid, TypeMultiAgent, TypeRecursive}
}

// ParseType resolves a workflow type from its wire name. A few aliases from
// the web UI are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptive", "react":
		return TypeAdaptive, nil
	case "rigid", "plan_execute":
		return TypeRigid, nil
	case "multi_agent", "multiagent":
		return TypeMultiAgent, nil
	case "recursive", "recursive_qa":
		return TypeRecursive, nil
	default:
		return "", fmt.Errorf("unknown workflow type %q", s)
	}
}

// Task is the unit of work submitted to a workflow. Immutable once
// submitted.
type Task struct {
	// Instruction is the free-text request, e.g. "write an email about
	// the budget meeting".
	Instruction string `json:"instruction"`

	// TargetName optionally names the entity the task concerns.
	TargetName string `json:"target_name,omitempty"`
}

// targetName returns the lookup query: the explicit target if given,
// otherwise the instruction itself.
func (t Task) targetName() string {
	if t.TargetName != "" {
		return t.TargetName
	}
	return t.Instruction
}

// Parameters tunes a single run. Zero values take engine defaults.
type Parameters struct {
	// MaxRetries bounds the adaptive disambiguation loop.
	MaxRetries int `json:"max_retries,omitempty"`

	// MaxRefinements bounds recursive Q&A iterations.
	MaxRefinements int `json:"max_refinements,omitempty"`

	// TargetConfidence is the recursive Q&A stop threshold, inclusive.
	TargetConfidence float64 `json:"target_confidence,omitempty"`

	// StepTimeout bounds each collaborator call.
	StepTimeout time.Duration `json:"step_timeout,omitempty"`

	// DocumentContext is prepended to recursive Q&A answer prompts.
	DocumentContext string `json:"document_context,omitempty"`
}

// SetDefaults fills zero fields from engine configuration.
func (p *Parameters) SetDefaults(cfg *config.EngineConfig) {
	if p.MaxRetries == 0 {
		p.MaxRetries = cfg.MaxRetries
	}
	if p.MaxRefinements == 0 {
		p.MaxRefinements = cfg.MaxRefinements
	}
	if p.TargetConfidence == 0 {
		p.TargetConfidence = cfg.TargetConfidence
	}
	if p.StepTimeout == 0 {
		p.StepTimeout = cfg.StepTimeoutDuration()
	}
}

// Status is the terminal status of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IterationRecord is one entry of a recursive Q&A run's history.
type IterationRecord struct {
	// Iteration numbers answer attempts starting at 1.
	Iteration int `json:"iteration"`

	Query  string `json:"query"`
	Answer string `json:"answer"`

	Confidence       float64 `json:"confidence"`
	SuggestedRewrite string  `json:"suggested_rewrite,omitempty"`
	Reasoning        string  `json:"reasoning,omitempty"`
}

// AgentMessage is one entry of the multi-agent delegation log.
type AgentMessage struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Evaluation is the model's quality assessment of a candidate answer.
type Evaluation struct {
	// Confidence is the overall score in [0, 1].
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1,description=Overall confidence score between 0 and 1"`

	Completeness float64 `json:"completeness" jsonschema:"minimum=0,maximum=1,description=Does the answer fully address the query"`
	Accuracy     float64 `json:"accuracy" jsonschema:"minimum=0,maximum=1,description=Is the information correct and well-supported"`
	Clarity      float64 `json:"clarity" jsonschema:"minimum=0,maximum=1,description=Is the answer clear and well-structured"`
	Relevance    float64 `json:"relevance" jsonschema:"minimum=0,maximum=1,description=Does it directly address what was asked"`

	// SuggestedRewrite proposes a better query when confidence is low.
	SuggestedRewrite string `json:"suggested_rewrite" jsonschema:"description=A refined query that would produce a better answer. Empty when the answer is satisfactory."`

	Reasoning string `json:"reasoning" jsonschema:"description=Why this confidence score was given"`
}

// RunResult is the final output of a workflow run. Produced once, at run
// completion, immutable thereafter.
type RunResult struct {
	WorkflowType Type   `json:"workflow_type"`
	Status       Status `json:"status"`

	// Output is the payload of a completed run.
	Output string `json:"output,omitempty"`

	// Contact is the resolved entity for contact-oriented workflows.
	Contact *directory.Contact `json:"contact,omitempty"`

	// Error fields are set on failed runs: the kind, the node whose
	// attempt failed, and a human-readable message.
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorNode    string    `json:"error_node,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// Retries counts adaptive disambiguation attempts.
	Retries int `json:"retries,omitempty"`

	// Iterations counts recursive Q&A answer attempts.
	Iterations int `json:"iterations,omitempty"`

	FinalConfidence     float64 `json:"final_confidence,omitempty"`
	ConfidenceTargetMet bool    `json:"confidence_target_met,omitempty"`

	// History is the full recursive Q&A iteration history.
	History []IterationRecord `json:"history,omitempty"`

	// Messages is the multi-agent delegation log.
	Messages []AgentMessage `json:"messages,omitempty"`

	// MissingPhases lists multi-agent phases whose calls failed.
	MissingPhases []string `json:"missing_phases,omitempty"`

	Duration time.Duration `json:"duration"`
}

// LanguageModel is the model collaborator a workflow calls out to.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// ContactFinder is the directory collaborator a workflow calls out to.
type ContactFinder interface {
	Find(ctx context.Context, name string) ([]directory.Contact, error)
	FindContaining(ctx context.Context, name string) ([]directory.Contact, error)
}

// Workflow runs a task to completion as a finite-state machine.
type Workflow interface {
	Type() Type

	// Describe returns the state graph as a Mermaid definition.
	Describe() string

	// Run executes the workflow. It never returns an error: failures
	// surface on the RunResult. Cancellation is checked before each
	// state transition, not mid-call.
	Run(ctx context.Context, task Task, params Parameters, rec *trace.Recorder) *RunResult
}

// New constructs the workflow for a type.
func New(t Type, model LanguageModel, contacts ContactFinder) (Workflow, error) {
	switch t {
	case TypeAdaptive:
		return NewAdaptive(model, contacts), nil
	case TypeRigid:
		return NewRigid(model, contacts), nil
	case TypeMultiAgent:
		return NewMultiAgent(model), nil
	case TypeRecursive:
		return NewRecursive(model), nil
	default:
		return nil, fmt.Errorf("unknown workflow type %q", t)
	}
}

// stepContext derives the per-collaborator-call context.
func stepContext(ctx context.Context, params Parameters) (context.Context, context.CancelFunc) {
	if params.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, params.StepTimeout)
}

// visit records one node visit with its measured duration.
func visit(rec *trace.Recorder, node string, start time.Time, status trace.Status, input, output map[string]any) {
	rec.Record(trace.NodeVisit{
		Node:      node,
		Status:    status,
		Input:     input,
		Output:    output,
		StartedAt: start,
		Duration:  time.Since(start),
	})
}

// cancelled marks a result as cancelled at the given node.
func cancelled(res *RunResult, node string, start time.Time) *RunResult {
	res.Status = StatusCancelled
	res.ErrorKind = ErrCancelled
	res.ErrorNode = node
	res.ErrorMessage = "run cancelled"
	res.Duration = time.Since(start)
	return res
}

// fail marks a result as failed at the given node. A cancellation
// surfacing through a collaborator call still counts as cancelled.
func fail(res *RunResult, node string, kind ErrorKind, msg string, start time.Time) *RunResult {
	if kind == ErrCancelled {
		return cancelled(res, node, start)
	}
	res.Status = StatusFailed
	res.ErrorKind = kind
	res.ErrorNode = node
	res.ErrorMessage = msg
	res.Duration = time.Since(start)
	return res
}
