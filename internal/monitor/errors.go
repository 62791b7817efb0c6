package monitor

import "fmt"

// WatchError wraps a change-stream failure on one watched target, tagged
// with the target name the way internal/lnd and internal/hive tag their
// stream errors with the stream/subscription they came from.
type WatchError struct {
	Target string
	Cause  error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("monitor: %s watch error: %v", e.Target, e.Cause)
}

func (e *WatchError) Unwrap() error {
	return e.Cause
}
