package fetch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	transport := errors.New("connection reset")

	tests := []struct {
		name       string
		outcome    Outcome
		attempt    int
		maxRetries int
		want       State
	}{
		{"success first attempt", Outcome{StatusCode: 200}, 0, 3, StateSucceeded},
		{"success on last attempt", Outcome{StatusCode: 204}, 3, 3, StateSucceeded},
		{"forbidden with budget", Outcome{StatusCode: 403}, 0, 3, StateCredentialRejectedRetry},
		{"payment required with budget", Outcome{StatusCode: 402}, 2, 3, StateCredentialRejectedRetry},
		{"server error with budget", Outcome{StatusCode: 500}, 1, 3, StateTransientRetry},
		{"not found with budget", Outcome{StatusCode: 404}, 0, 3, StateTransientRetry},
		{"transport error with budget", Outcome{Err: transport}, 0, 3, StateTransientRetry},
		{"2xx with decode error", Outcome{StatusCode: 200, Err: transport}, 0, 3, StateTransientRetry},
		{"forbidden out of budget", Outcome{StatusCode: 403}, 3, 3, StateExhausted},
		{"server error out of budget", Outcome{StatusCode: 503}, 3, 3, StateExhausted},
		{"zero retries", Outcome{StatusCode: 500}, 0, 0, StateExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.outcome, tt.attempt, tt.maxRetries))
		})
	}
}

func TestOutcomeFailure(t *testing.T) {
	assert.ErrorIs(t, Outcome{StatusCode: 403}.failure(), ErrCredentialRejected)
	assert.ErrorIs(t, Outcome{StatusCode: 500}.failure(), ErrTransientHTTP)
	assert.NoError(t, Outcome{StatusCode: 200}.failure())

	cause := errors.New("boom")
	assert.Equal(t, cause, Outcome{Err: cause}.failure())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{
		Kind:       ErrResourceUnavailable,
		Target:     "http://api/x",
		StatusCode: 500,
		Attempt:    4,
		MaxRetries: 3,
		RequestID:  "req-1",
		Cause:      Outcome{StatusCode: 500}.failure(),
	}

	assert.Equal(t, "[req-1] fetch: resource unavailable: http://api/x (HTTP 500): fetch: transient http error: HTTP 500 (attempt 4/4)", err.Error())
	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.ErrorIs(t, err, ErrTransientHTTP)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "credential_rejected_retry", StateCredentialRejectedRetry.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "state(99)", State(99).String())
}
