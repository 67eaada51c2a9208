package main

import (
	"context"
	"errors"
	"fmt"
)

// Failure kinds. Adapters wrap these with %w so callers can classify a failed
// call with errors.Is; none of them ever escape a fan-out as a Go error.
var (
	// ErrConfiguration means a backend could not be called at all: missing
	// credential, unknown CLI tool, or a tool absent from PATH.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport covers non-2xx responses, non-zero exits and decode failures.
	ErrTransport = errors.New("transport error")

	// ErrTimeout is a per-call deadline expiry.
	ErrTimeout = errors.New("timeout")

	// ErrParse marks ranking text with no recognizable labels.
	ErrParse = errors.New("parse error")
)

// PipelineError is the only fatal failure kind: a defect in orchestration or an
// unavailable collaborator (config store, persistence). It terminates a run
// with an error event.
type PipelineError struct {
	Op  string
	Err error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// failedResult converts any adapter error into a failed QueryResult.
func failedResult(err error) QueryResult {
	return QueryResult{
		Failed: true,
		Error:  err.Error(),
	}
}

// classifyContextError maps a context expiry to ErrTimeout and leaves anything
// else as a transport failure.
func classifyContextError(ctx context.Context, err error, what string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrTransport, what, err)
}
