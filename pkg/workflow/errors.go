package workflow

import (
	"context"
	"errors"

	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/llm"
)

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	// ErrNotFound means the directory returned zero matches.
	ErrNotFound ErrorKind = "not_found"

	// ErrAmbiguous means the directory returned multiple matches and the
	// workflow does not resolve ambiguity.
	ErrAmbiguous ErrorKind = "ambiguous"

	// ErrRetryExhausted means the disambiguation loop exceeded its bound.
	ErrRetryExhausted ErrorKind = "retry_exhausted"

	// ErrModelUnavailable means the model collaborator failed at the
	// transport level.
	ErrModelUnavailable ErrorKind = "model_unavailable"

	// ErrModelOutputInvalid means the model's output failed schema
	// validation.
	ErrModelOutputInvalid ErrorKind = "model_output_invalid"

	// ErrDirectoryUnavailable means the directory backing store failed.
	ErrDirectoryUnavailable ErrorKind = "directory_unavailable"

	// ErrCancelled means the caller cancelled the run.
	ErrCancelled ErrorKind = "cancelled"
)

// classify maps a collaborator error to its kind.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, llm.ErrModelOutputInvalid):
		return ErrModelOutputInvalid
	case errors.Is(err, directory.ErrDirectoryUnavailable):
		return ErrDirectoryUnavailable
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return ErrModelUnavailable
	}
}
