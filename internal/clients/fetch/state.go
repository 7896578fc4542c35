package fetch

import (
	"fmt"
	"net/http"
)

// State is the position of a single fetch in its retry loop.
type State int

const (
	StateAttempting State = iota
	StateCredentialRejectedRetry
	StateTransientRetry
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateCredentialRejectedRetry:
		return "credential_rejected_retry"
	case StateTransientRetry:
		return "transient_retry"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is what one attempt produced: a status code when a response came
// back, Err when the transport or the body decoding failed.
type Outcome struct {
	StatusCode int
	Err        error
}

// CredentialRejected reports a 402 Payment Required or 403 Forbidden answer.
func (o Outcome) CredentialRejected() bool {
	return o.Err == nil && (o.StatusCode == http.StatusForbidden || o.StatusCode == http.StatusPaymentRequired)
}

func (o Outcome) ok() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode <= 299
}

// failure converts a non-successful outcome into the error it stands for.
func (o Outcome) failure() error {
	switch {
	case o.Err != nil:
		return o.Err
	case o.CredentialRejected():
		return fmt.Errorf("%w: HTTP %d", ErrCredentialRejected, o.StatusCode)
	case !o.ok():
		return fmt.Errorf("%w: HTTP %d", ErrTransientHTTP, o.StatusCode)
	default:
		return nil
	}
}

// Decide maps the outcome of attempt (zero based) to the next state. A fetch
// may make maxRetries+1 attempts in total.
//
//	outcome              budget left   next state
//	2xx, body decoded    any           Succeeded
//	402 / 403            yes           CredentialRejectedRetry
//	other non-2xx        yes           TransientRetry
//	transport / decode   yes           TransientRetry
//	any failure          no            Exhausted
func Decide(o Outcome, attempt, maxRetries int) State {
	if o.ok() {
		return StateSucceeded
	}
	if attempt >= maxRetries {
		return StateExhausted
	}
	if o.CredentialRejected() {
		return StateCredentialRejectedRetry
	}
	return StateTransientRetry
}
