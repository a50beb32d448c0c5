package exitcodes

import (
	"errors"
	"strconv"
)

// Exit codes for dupsweep
// These codes form the contract with scripts that wrap the CLI
const (
	Success            = 0 // Successful execution
	ActionFailures     = 1 // Run finished but one or more files could not be handled
	InvalidConfig      = 2 // Configuration file or arguments invalid
	InvalidDestination = 3 // Move destination missing, not a directory, or refused
	RuntimeError       = 4 // Runtime error during execution
)

// Error carries a process exit code alongside the underlying error
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches an exit code to err. A nil err stays nil.
func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// FromError maps err to the exit code main should use
func FromError(err error) int {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RuntimeError
}
