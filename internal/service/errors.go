package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
)

// Sentinel errors.
var (
	ErrRunFailed            = errors.New("run failed")
	ErrMissingDefaultPrompt = errors.New("prompt set has no default prompt")
	ErrNoPrompts            = errors.New("prompt set has no questions")
)

// RunFailedError carries the error the remote service reported for a
// failed run.
type RunFailedError struct {
	RunID   string
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("run %s failed: %s", e.RunID, e.Message)
	}
	return fmt.Sprintf("run %s failed (%s): %s", e.RunID, e.Code, e.Message)
}

// Unwrap lets errors.Is match ErrRunFailed.
func (e *RunFailedError) Unwrap() error {
	return ErrRunFailed
}

// AbortScope says how much work an error stops.
type AbortScope int

const (
	// AbortDocument stops the current document; the batch continues.
	AbortDocument AbortScope = iota
	// AbortBatch stops the whole batch; cleanup still runs.
	AbortBatch
)

func (s AbortScope) String() string {
	if s == AbortBatch {
		return "batch"
	}
	return "document"
}

// AbortError wraps an error with the scope it aborts.
type AbortError struct {
	Scope AbortScope
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s aborted: %v", e.Scope, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// abortDocument wraps err as a document abort, escalating to a batch
// abort for errors no other document could get past.
func abortDocument(err error) error {
	if err == nil {
		return nil
	}
	var abort *AbortError
	if errors.As(err, &abort) {
		return err
	}
	if escalates(err) {
		return &AbortError{Scope: AbortBatch, Err: err}
	}
	return &AbortError{Scope: AbortDocument, Err: err}
}

func abortBatch(err error) error {
	if err == nil {
		return nil
	}
	return &AbortError{Scope: AbortBatch, Err: err}
}

// escalates reports errors that would fail every following document too.
func escalates(err error) bool {
	return assistant.IsFatal(err) || errors.Is(err, context.Canceled)
}

// IsBatchAbort reports whether err stops the whole batch.
func IsBatchAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort) && abort.Scope == AbortBatch
}
