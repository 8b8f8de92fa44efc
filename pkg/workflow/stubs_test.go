package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/directory"
)

// stubLLM scripts model behavior per call index. Safe for concurrent use.
type stubLLM struct {
	mu sync.Mutex

	// generations holds scripted Generate outputs by call index; calls
	// past the end return a fixed placeholder.
	generations  []string
	generateErrs map[int]error

	// structuredFn handles GenerateStructured calls.
	structuredFn func(call int, prompt string, out any) error

	generateCalls   int
	structuredCalls int
	generatePrompts []string
}

func (s *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.generateCalls
	s.generateCalls++
	s.generatePrompts = append(s.generatePrompts, prompt)

	if err := s.generateErrs[call]; err != nil {
		return "", err
	}
	if call < len(s.generations) {
		return s.generations[call], nil
	}
	return "generated output", nil
}

func (s *stubLLM) GenerateStructured(_ context.Context, prompt string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.structuredCalls
	s.structuredCalls++

	if s.structuredFn == nil {
		return fmt.Errorf("unexpected structured call %d", call)
	}
	return s.structuredFn(call, prompt, out)
}

func (s *stubLLM) counts() (generate, structured int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateCalls, s.structuredCalls
}

// resolveTo scripts a disambiguator that always picks the same name.
func resolveTo(name string) func(int, string, any) error {
	return func(_ int, _ string, out any) error {
		out.(*chosenCandidate).Name = name
		return nil
	}
}

// evaluations scripts an evaluator returning the given records in order;
// the last one repeats.
func evaluations(evals ...Evaluation) func(int, string, any) error {
	return func(call int, _ string, out any) error {
		if call >= len(evals) {
			call = len(evals) - 1
		}
		*out.(*Evaluation) = evals[call]
		return nil
	}
}

// confidences scripts an evaluator by confidence score only.
func confidences(scores ...float64) func(int, string, any) error {
	evals := make([]Evaluation, len(scores))
	for i, score := range scores {
		evals[i] = Evaluation{Confidence: score}
	}
	return evaluations(evals...)
}

// blockingLLM parks Generate calls until released, for cancellation and
// in-flight-state tests.
type blockingLLM struct {
	stubLLM
	release chan struct{}
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{release: make(chan struct{})}
}

func (b *blockingLLM) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-b.release:
		return b.stubLLM.Generate(ctx, prompt)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// failingDirectory simulates a broken backing store.
type failingDirectory struct{}

func (failingDirectory) Find(context.Context, string) ([]directory.Contact, error) {
	return nil, fmt.Errorf("%w: connection refused", directory.ErrDirectoryUnavailable)
}

func (failingDirectory) FindContaining(context.Context, string) ([]directory.Contact, error) {
	return nil, fmt.Errorf("%w: connection refused", directory.ErrDirectoryUnavailable)
}

func seededDirectory() *directory.Memory {
	return directory.NewMemory(directory.SeedContacts()...)
}

func testParams() Parameters {
	cfg := config.EngineConfig{}
	cfg.SetDefaults()
	p := Parameters{}
	p.SetDefaults(&cfg)
	return p
}

func testEngineConfig() config.EngineConfig {
	cfg := config.EngineConfig{}
	cfg.SetDefaults()
	return cfg
}
