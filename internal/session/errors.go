package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an operation failed.
type ErrorKind int

const (
	// AuthFailure: sign-in rejected or cancelled, or no user for an operation that needs one.
	AuthFailure ErrorKind = iota + 1
	// NotFound: the requested document does not exist (or is not the user's).
	NotFound
	// RemoteFailure: the store, identity service or cache could not be reached or failed.
	RemoteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailure:
		return "auth failure"
	case NotFound:
		return "not found"
	case RemoteFailure:
		return "remote failure"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// ErrSuperseded is returned when a newer request took over the state slot
// before this one completed. Its result was discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// OpError is the error every controller operation reports.
type OpError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return 0, false
}

func opErr(op string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}
