package lock

import "errors"

// ErrLockAcquisitionFailed is raised when Acquire's overall
// blocking_timeout elapses without obtaining the lock (spec §4.J).
var ErrLockAcquisitionFailed = errors.New("lock: acquisition failed, timed out waiting")

// ErrNotOwned is returned by Release when the caller's token doesn't
// match the lock currently held — either someone else holds it, or it
// already expired and was re-acquired by another holder.
var ErrNotOwned = errors.New("lock: not owned by caller")

// ErrAlreadyExpired is returned by Release when the lock key is simply
// gone (expired on its own, no one re-acquired it yet) — a benign
// double-release case the teacher's ReleaseTreasuryLock treats as a
// best-effort no-op.
var ErrAlreadyExpired = errors.New("lock: already expired")
