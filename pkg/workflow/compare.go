package workflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cadenlabs/agentbench/pkg/trace"
)

const timeRound = time.Millisecond

// Comparison pits the adaptive and rigid workflows against each other on
// the same task.
type Comparison struct {
	Task     Task       `json:"task"`
	Adaptive *RunResult `json:"adaptive"`
	Rigid    *RunResult `json:"rigid"`

	// Winner is "adaptive", "rigid", or "none" when both failed.
	Winner   string `json:"winner"`
	Analysis string `json:"analysis"`
}

// Compare runs both contact workflows in parallel and scores the outcome:
// success beats failure, and between two successes the faster run wins.
func (e *Engine) Compare(ctx context.Context, task Task, params Parameters) (*Comparison, error) {
	params.SetDefaults(&e.defaults)

	adaptive := NewAdaptive(e.model, e.contacts)
	rigid := NewRigid(e.model, e.contacts)

	var adaptiveRes, rigidRes *RunResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		adaptiveRes = adaptive.Run(gctx, task, params, trace.NewRecorder())
		return nil
	})
	g.Go(func() error {
		rigidRes = rigid.Run(gctx, task, params, trace.NewRecorder())
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp := &Comparison{Task: task, Adaptive: adaptiveRes, Rigid: rigidRes}
	adaptiveOK := adaptiveRes.Status == StatusCompleted
	rigidOK := rigidRes.Status == StatusCompleted

	switch {
	case adaptiveOK && !rigidOK:
		cmp.Winner = "adaptive"
		cmp.Analysis = "Adaptive succeeded where Rigid failed (likely due to ambiguity handling)."
	case rigidOK && !adaptiveOK:
		cmp.Winner = "rigid"
		cmp.Analysis = "Rigid succeeded where Adaptive failed."
	case adaptiveOK && rigidOK:
		if adaptiveRes.Duration <= rigidRes.Duration {
			cmp.Winner = "adaptive"
		} else {
			cmp.Winner = "rigid"
		}
		cmp.Analysis = fmt.Sprintf("Both succeeded. Adaptive: %v, Rigid: %v. %s was faster.",
			adaptiveRes.Duration.Round(timeRound), rigidRes.Duration.Round(timeRound), cmp.Winner)
	default:
		cmp.Winner = "none"
		cmp.Analysis = "Both workflows failed."
	}
	return cmp, nil
}
