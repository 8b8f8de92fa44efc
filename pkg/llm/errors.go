package llm

import "errors"

var (
	// ErrModelUnavailable reports a transport or provider failure.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelOutputInvalid reports output that failed schema validation.
	ErrModelOutputInvalid = errors.New("model output invalid")
)
