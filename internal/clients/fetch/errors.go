package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialRejected marks a 402 or 403 answer to a request.
	ErrCredentialRejected = errors.New("fetch: credential rejected")

	// ErrTransientHTTP marks any other non-2xx answer.
	ErrTransientHTTP = errors.New("fetch: transient http error")

	// ErrResourceUnavailable is returned once the retry budget is spent.
	ErrResourceUnavailable = errors.New("fetch: resource unavailable")
)

// Error describes a failed fetch. Kind is one of the sentinels above and
// Cause is the last underlying failure, if any.
type Error struct {
	Kind       error
	Target     string
	StatusCode int
	Attempt    int
	MaxRetries int
	RequestID  string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Target)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries+1)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
