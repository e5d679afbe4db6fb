package dopus

import (
	"errors"
	"fmt"
)

// Sentinel errors for dopus. Use errors.Is to check.
var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrInvalidArgument = errors.New("invalid tool argument")
	ErrAlreadyRunning  = errors.New("engine loop already running")
	ErrNoToolCall      = errors.New("value is not a tool call")
)

// ArgumentError reports that raw arguments from the provider could not be turned into
// the values a handler asked for (missing field, wrong type, failed Validate).
// errors.Is(err, ErrInvalidArgument) holds for every ArgumentError.
type ArgumentError struct {
	Param string // empty when the whole argument object failed to decode
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid arguments: %v", e.Err)
	}
	return fmt.Sprintf("invalid argument %q: %v", e.Param, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Is reports ErrInvalidArgument as a match so callers need not know the concrete type.
func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ExecutionError wraps an error returned by a tool handler, or a recovered panic.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsArgumentError returns true if err is or wraps an ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsExecutionError returns true if err is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// wrapHandlerError passes ArgumentError through and wraps anything else as ExecutionError.
func wrapHandlerError(tool string, err error) error {
	if err == nil {
		return nil
	}
	if IsArgumentError(err) {
		return err
	}
	return &ExecutionError{Tool: tool, Err: err}
}

// panicError wraps a recovered panic value for ExecutionError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
