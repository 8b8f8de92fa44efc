package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/cadenlabs/agentbench/pkg/trace"
)

// recursiveState enumerates the iterative-refinement workflow's nodes.
type recursiveState string

const (
	recAnswer   recursiveState = "answer"
	recEvaluate recursiveState = "evaluate"
	recRefine   recursiveState = "refine"
	recEnd      recursiveState = "end"
)

// recursiveNext is the pure transition function. iteration counts answer
// attempts starting at 1; the confidence comparison is inclusive at the
// threshold.
func recursiveNext(state recursiveState, confidence, target float64, iteration, maxRefinements int) recursiveState {
	switch state {
	case recAnswer:
		return recEvaluate
	case recEvaluate:
		if confidence >= target {
			return recEnd
		}
		if iteration < maxRefinements {
			return recRefine
		}
		// Budget spent: stop with the best effort so far.
		return recEnd
	case recRefine:
		return recAnswer
	default:
		return recEnd
	}
}

// Recursive is the iterative-refinement workflow. It answers, scores the
// answer against a fixed rubric, and rewrites the query until confidence
// reaches the target or the refinement budget is spent. Running out of
// budget is not a failure: the best answer so far is still returned.
type Recursive struct {
	model LanguageModel
}

// NewRecursive creates the iterative-refinement workflow.
func NewRecursive(model LanguageModel) *Recursive {
	return &Recursive{model: model}
}

func (w *Recursive) Type() Type { return TypeRecursive }

func (w *Recursive) Describe() string {
	return `graph TD
    START((Start)) --> answer[Answer<br/>Generate Answer]
    answer --> evaluate[Evaluate<br/>Quality Assessment]
    evaluate -->|below target| refine[Refine<br/>Query Rewrite]
    evaluate -->|target met / budget spent| END_NODE((End))
    refine --> answer`
}

func (w *Recursive) Run(ctx context.Context, task Task, params Parameters, rec *trace.Recorder) *RunResult {
	if rec == nil {
		rec = trace.NewRecorder()
	}
	runStart := time.Now()
	res := &RunResult{WorkflowType: TypeRecursive}

	originalQuery := task.Instruction
	query := originalQuery
	iteration := 0

	state := recAnswer
	for state != recEnd {
		if ctx.Err() != nil {
			res.Iterations = iteration
			return cancelled(res, string(state), runStart)
		}

		switch state {
		case recAnswer:
			iteration++
			start := time.Now()

			var prev *IterationRecord
			if len(res.History) > 0 {
				prev = &res.History[len(res.History)-1]
			}
			stepCtx, cancel := stepContext(ctx, params)
			answer, err := w.model.Generate(stepCtx, answerPrompt(query, params.DocumentContext, prev))
			cancel()
			if err != nil {
				visit(rec, "answer", start, trace.VisitFailed,
					map[string]any{"iteration": iteration, "query": query},
					map[string]any{"error": err.Error()})
				res.Iterations = iteration
				return fail(res, "answer", classify(err), err.Error(), runStart)
			}
			visit(rec, "answer", start, trace.VisitSucceeded,
				map[string]any{"iteration": iteration, "query": query},
				map[string]any{"answer": answer})

			// One history entry per answer attempt; the evaluation
			// fills in the scores.
			res.History = append(res.History, IterationRecord{
				Iteration: iteration,
				Query:     query,
				Answer:    answer,
			})
			state = recursiveNext(state, 0, params.TargetConfidence, iteration, params.MaxRefinements)

		case recEvaluate:
			start := time.Now()
			current := &res.History[len(res.History)-1]

			var eval Evaluation
			stepCtx, cancel := stepContext(ctx, params)
			err := w.model.GenerateStructured(stepCtx,
				evaluatePrompt(originalQuery, query, current.Answer, params.TargetConfidence), &eval)
			cancel()
			if err != nil {
				visit(rec, "evaluate", start, trace.VisitFailed,
					map[string]any{"iteration": iteration}, map[string]any{"error": err.Error()})
				res.Iterations = iteration
				return fail(res, "evaluate", classify(err), err.Error(), runStart)
			}
			visit(rec, "evaluate", start, trace.VisitSucceeded,
				map[string]any{"iteration": iteration},
				map[string]any{"confidence": eval.Confidence, "suggested_rewrite": eval.SuggestedRewrite})

			current.Confidence = eval.Confidence
			current.SuggestedRewrite = eval.SuggestedRewrite
			current.Reasoning = eval.Reasoning

			state = recursiveNext(state, eval.Confidence, params.TargetConfidence, iteration, params.MaxRefinements)
			if state == recEnd {
				res.Status = StatusCompleted
				res.Output = current.Answer
				res.FinalConfidence = eval.Confidence
				res.ConfidenceTargetMet = eval.Confidence >= params.TargetConfidence
				if !res.ConfidenceTargetMet {
					slog.Info("refinement budget spent below confidence target",
						"confidence", eval.Confidence, "target", params.TargetConfidence)
				}
			}

		case recRefine:
			start := time.Now()
			last := res.History[len(res.History)-1]
			refined := refineQuery(originalQuery, last.SuggestedRewrite)
			visit(rec, "refine", start, trace.VisitSucceeded,
				map[string]any{"query": query}, map[string]any{"refined": refined})
			query = refined
			state = recursiveNext(state, 0, params.TargetConfidence, iteration, params.MaxRefinements)
		}
	}

	res.Iterations = iteration
	res.Duration = time.Since(runStart)
	return res
}
