package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected by the runtime.
//
// Runtime errors include:
//   - Lifecycle: Start or Stop called from the wrong state
//   - Config: invalid configuration, layout or working directory
//   - Missing result: a solver result file was not produced
//   - Solver failed: the solver exited non-zero or timed out
//   - Result format: a result file could not be parsed
//   - Work dir: the working directory could not be read or written
//
// Cycle errors carry the run ID and cycle sequence number.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, if any.
	RunID string

	// Cycle is the cycle sequence number, 0 outside a cycle.
	Cycle int64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeLifecycle indicates a Start or Stop from the wrong state.
	ErrCodeLifecycle RuntimeErrorCode = "LIFECYCLE"

	// ErrCodeConfig indicates invalid configuration.
	ErrCodeConfig RuntimeErrorCode = "CONFIG"

	// ErrCodeMissingResult indicates a solver result file does not exist.
	ErrCodeMissingResult RuntimeErrorCode = "MISSING_RESULT"

	// ErrCodeSolverFailed indicates the solver did not complete.
	ErrCodeSolverFailed RuntimeErrorCode = "SOLVER_FAILED"

	// ErrCodeResultFormat indicates a malformed result file.
	ErrCodeResultFormat RuntimeErrorCode = "RESULT_FORMAT"

	// ErrCodeWorkDir indicates a working directory I/O failure.
	ErrCodeWorkDir RuntimeErrorCode = "WORKDIR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RunID != "" && e.Cycle > 0 {
		msg = fmt.Sprintf("%s (run=%s, cycle=%d)", msg, e.RunID, e.Cycle)
	} else if e.RunID != "" {
		msg = fmt.Sprintf("%s (run=%s)", msg, e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsLifecycleError returns true if err is a lifecycle error.
func IsLifecycleError(err error) bool { return hasCode(err, ErrCodeLifecycle) }

// IsConfigError returns true if err is a configuration error.
func IsConfigError(err error) bool { return hasCode(err, ErrCodeConfig) }

// IsMissingResultError returns true if err reports a missing result file.
func IsMissingResultError(err error) bool { return hasCode(err, ErrCodeMissingResult) }

// IsSolverError returns true if err reports a failed solver run.
func IsSolverError(err error) bool { return hasCode(err, ErrCodeSolverFailed) }

// NewLifecycleError creates a RuntimeError for an operation attempted from
// the wrong state.
func NewLifecycleError(op string, state State) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeLifecycle,
		Message: fmt.Sprintf("cannot %s a runtime that is %s", op, state),
		Details: map[string]string{
			"op":    op,
			"state": state.String(),
		},
	}
}
