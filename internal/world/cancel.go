package world

import "sync/atomic"

// CancelToken is a one-shot cancellation flag shared by every Snapshot taken
// from a given World generation. World.ApplyChange cancels the current token
// and installs a fresh one, so every in-flight query holding the old
// generation's snapshot observes cancellation on its next check, mirroring
// the teacher's atomic-counter-guarded cancellation idiom in
// internal/core/spawn_queue.go.
type CancelToken struct {
	canceled atomic.Bool
}

// NewCancelToken returns a fresh, live token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token canceled. Idempotent.
func (c *CancelToken) Cancel() {
	c.canceled.Store(true)
}

// IsCanceled reports whether the token has been canceled.
func (c *CancelToken) IsCanceled() bool {
	return c.canceled.Load()
}

// CanceledError is the error type of ErrCanceled, which CheckCanceled
// returns when the token has fired.
type CanceledError struct{}

func (CanceledError) Error() string { return "request canceled" }

// ErrCanceled is the sentinel instance query handlers should match with errors.As.
var ErrCanceled = CanceledError{}

// CheckCanceled returns ErrCanceled if the token has fired, nil otherwise.
// Long-running query handlers should call this between expensive steps (e.g.
// after visiting each top-level item) so cancellation is observed promptly
// rather than only at the end of a handler.
func (c *CancelToken) CheckCanceled() error {
	if c.IsCanceled() {
		return ErrCanceled
	}
	return nil
}
