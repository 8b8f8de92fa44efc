package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenlabs/agentbench/pkg/llm"
)

func TestRecursiveNext(t *testing.T) {
	tests := []struct {
		name       string
		state      recursiveState
		confidence float64
		iteration  int
		want       recursiveState
	}{
		{"answer always evaluates", recAnswer, 0, 1, recEvaluate},
		{"above target ends", recEvaluate, 0.9, 1, recEnd},
		{"at target ends", recEvaluate, 0.85, 1, recEnd},
		{"below target refines", recEvaluate, 0.5, 1, recRefine},
		{"below target at budget ends", recEvaluate, 0.5, 3, recEnd},
		{"refine loops to answer", recRefine, 0, 1, recAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recursiveNext(tt.state, tt.confidence, 0.85, tt.iteration, 3))
		})
	}
}

func TestRecursiveStopsWhenTargetReached(t *testing.T) {
	model := &stubLLM{
		generations:  []string{"answer 1", "answer 2", "answer 3"},
		structuredFn: confidences(0.5, 0.7, 0.9),
	}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "what is raft?"}, testParams(), nil)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "answer 3", res.Output)
	assert.InDelta(t, 0.9, res.FinalConfidence, 1e-9)
	assert.True(t, res.ConfidenceTargetMet)
	require.Len(t, res.History, 3)
}

func TestRecursiveBestEffortWhenBudgetSpent(t *testing.T) {
	model := &stubLLM{
		generations:  []string{"answer 1", "answer 2", "answer 3"},
		structuredFn: confidences(0.5, 0.6, 0.7),
	}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "what is raft?"}, testParams(), nil)

	// Never reaching the target is still a completed run.
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "answer 3", res.Output)
	assert.InDelta(t, 0.7, res.FinalConfidence, 1e-9)
	assert.False(t, res.ConfidenceTargetMet)
}

func TestRecursiveStopsImmediatelyAtTarget(t *testing.T) {
	model := &stubLLM{
		generations:  []string{"answer 1"},
		structuredFn: confidences(0.85),
	}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "q"}, testParams(), nil)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.True(t, res.ConfidenceTargetMet)

	generate, structured := model.counts()
	assert.Equal(t, 1, generate)
	assert.Equal(t, 1, structured)
}

func TestRecursiveHistoryMatchesAnswerAttempts(t *testing.T) {
	model := &stubLLM{structuredFn: confidences(0.1, 0.2, 0.3)}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "q"}, testParams(), nil)

	generate, _ := model.counts()
	require.Len(t, res.History, generate)
	for i, entry := range res.History {
		assert.Equal(t, i+1, entry.Iteration)
	}
	assert.Equal(t, 1, res.History[0].Iteration)
}

func TestRecursiveUsesSuggestedRewrite(t *testing.T) {
	model := &stubLLM{
		structuredFn: evaluations(
			Evaluation{Confidence: 0.4, SuggestedRewrite: "explain raft leader election"},
			Evaluation{Confidence: 0.9},
		),
	}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "what is raft?"}, testParams(), nil)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.History, 2)
	assert.Equal(t, "explain raft leader election", res.History[1].Query)

	require.Len(t, model.generatePrompts, 2)
	assert.Contains(t, model.generatePrompts[1], "explain raft leader election")
	assert.Contains(t, model.generatePrompts[1], "Previous attempt")
}

func TestRecursiveFallbackRefinementWithoutRewrite(t *testing.T) {
	model := &stubLLM{structuredFn: confidences(0.4, 0.9)}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "what is raft?"}, testParams(), nil)

	require.Len(t, res.History, 2)
	assert.Contains(t, res.History[1].Query, "what is raft?")
	assert.NotEqual(t, res.History[0].Query, res.History[1].Query)
}

func TestRecursiveIncludesDocumentContext(t *testing.T) {
	model := &stubLLM{structuredFn: confidences(0.9)}
	wf := NewRecursive(model)

	params := testParams()
	params.DocumentContext = "raft is a consensus protocol"
	wf.Run(context.Background(), Task{Instruction: "q"}, params, nil)

	require.Len(t, model.generatePrompts, 1)
	assert.Contains(t, model.generatePrompts[0], "Document Context:")
	assert.Contains(t, model.generatePrompts[0], "raft is a consensus protocol")
}

func TestRecursiveInvalidEvaluationFailsRun(t *testing.T) {
	model := &stubLLM{
		structuredFn: func(int, string, any) error {
			return fmt.Errorf("%w: not an object", llm.ErrModelOutputInvalid)
		},
	}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "q"}, testParams(), nil)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrModelOutputInvalid, res.ErrorKind)
	assert.Equal(t, "evaluate", res.ErrorNode)
}

func TestRecursiveAnswerFailureFailsRun(t *testing.T) {
	model := &stubLLM{generateErrs: map[int]error{0: fmt.Errorf("%w: 503", llm.ErrModelUnavailable)}}
	wf := NewRecursive(model)

	res := wf.Run(context.Background(), Task{Instruction: "q"}, testParams(), nil)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrModelUnavailable, res.ErrorKind)
	assert.Equal(t, "answer", res.ErrorNode)
}
