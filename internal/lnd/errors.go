package lnd

import "fmt"

// LNDConnectionError is raised when CheckConnection exhausts its retry
// budget — the bridge treats this as fatal for the calling subscription,
// bubbling up to the top-level supervisor (spec §4.H).
type LNDConnectionError struct {
	Tries int
	Cause error
}

func (e *LNDConnectionError) Error() string {
	return fmt.Sprintf("lnd: connection check failed after %d tries: %v", e.Tries, e.Cause)
}

func (e *LNDConnectionError) Unwrap() error {
	return e.Cause
}

// LNDSubscriptionError wraps a stream-level failure on one of the three
// long-lived subscriptions (invoice, HTLC, payment), tagged with the stream
// name so the supervisor's logs identify which one dropped.
type LNDSubscriptionError struct {
	Stream string
	Cause  error
}

func (e *LNDSubscriptionError) Error() string {
	return fmt.Sprintf("lnd: %s subscription error: %v", e.Stream, e.Cause)
}

func (e *LNDSubscriptionError) Unwrap() error {
	return e.Cause
}
