package job

import (
	"errors"
	"fmt"
)

// Kind splits job and session failures into the two classes callers see:
// mistakes they can correct themselves, and everything else.
type Kind int

const (
	// KindBadInput marks a caller-correctable mistake. The message is
	// safe to surface verbatim.
	KindBadInput Kind = iota
	// KindInternal marks an I/O, process or runner failure. The detail
	// is kept for logging; callers only see a generic message.
	KindInternal
)

// Error is the taxonomy type returned across the job/session boundary.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.kind == KindInternal {
		return "internal error"
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the error class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Detail returns the full failure description, including internal detail
// that must not be surfaced to callers. Intended for logging.
func (e *Error) Detail() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.msg
}

// BadInput builds a caller-correctable error with a specific message.
func BadInput(format string, args ...interface{}) *Error {
	return &Error{kind: KindBadInput, msg: fmt.Sprintf(format, args...)}
}

// Internal wraps an internal failure. Its surfaced message is generic.
func Internal(err error) *Error {
	return &Error{kind: KindInternal, err: err}
}

// Internalf builds an internal failure from a format string.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{kind: KindInternal, err: fmt.Errorf(format, args...)}
}

// IsBadInput reports whether err is a caller-correctable job error.
func IsBadInput(err error) bool {
	var je *Error
	return errors.As(err, &je) && je.kind == KindBadInput
}

// IsInternal reports whether err is an internal job error.
func IsInternal(err error) bool {
	var je *Error
	return errors.As(err, &je) && je.kind == KindInternal
}
