package hive

import "fmt"

// StreamError wraps a fatal block-stream failure surfaced after
// exhausting the ingest's reconnect budget (spec §4.G: "base 2s, cap
// 60s, max 20 tries before surfacing").
type StreamError struct {
	Tries int
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("hive: block stream failed after %d tries: %v", e.Tries, e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }
