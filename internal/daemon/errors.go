package daemon

import (
	"errors"
	"fmt"
)

// Sentinel errors for daemon operations.
var (
	ErrNotFound    = errors.New("daemon: not found")
	ErrRateLimited = errors.New("daemon: rate limited by server")
	ErrBadRequest  = errors.New("daemon: bad request")
	ErrConflict    = errors.New("daemon: version conflict")
	ErrServer      = errors.New("daemon: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op   string // "getDocument", "createDocumentChange", ...
	Path string // If applicable
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("daemon %s [%s]: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("daemon %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}
