package job

import (
	"errors"
	"strings"
)

// Error kinds. Every error returned by Service and Job wraps one of them,
// so callers can test with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrResolution   = errors.New("resolution error")
	ErrLaunch       = errors.New("launch error")
	ErrIllegalState = errors.New("illegal state")
	ErrCancellation = errors.New("cancellation error")
	ErrNotFound     = errors.New("not found")
	ErrUnsupported  = errors.New("unsupported operation")
)

// Error describes a failed operation on a Job or a Service.
type Error struct {
	Op   string // run, wait, cancel, create_job, ...
	ID   ID     // empty when no id has been assigned yet
	Kind error  // one of the Err* kinds, may be nil
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.ID != "" {
		sb.WriteString(" job ")
		sb.WriteString(string(e.ID))
	}
	if e.Kind != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	ret := make([]error, 0, 2)
	if e.Kind != nil {
		ret = append(ret, e.Kind)
	}
	if e.Err != nil {
		ret = append(ret, e.Err)
	}
	return ret
}

func newError(op string, id ID, kind, err error) *Error {
	return &Error{Op: op, ID: id, Kind: kind, Err: err}
}
