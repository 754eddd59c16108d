// Package ioshutdown implements the process-wide I/O cancellation signal
// observed by every engine entry point, per spec.md §4.8.
package ioshutdown

import (
	"fmt"

	"go.uber.org/atomic"

	"strubs/cmn"
)

// Token is a single process-wide abort signal. The zero value is ready to
// use. Grounded on the teacher's lock-free-flag idiom (go.uber.org/atomic,
// vendored by the teacher as 3rdparty/atomic) used throughout ec/ for
// jogger stop signaling.
type Token struct {
	aborted atomic.Bool
	reason  atomic.String
}

// Abort sets the token. Idempotent: only the first reason sticks.
func (t *Token) Abort(reason string) {
	if t.aborted.CompareAndSwap(false, true) {
		t.reason.Store(reason)
	}
}

// Aborted reports whether Abort has been called.
func (t *Token) Aborted() bool { return t.aborted.Load() }

// Reason returns the reason passed to the first Abort call, or "".
func (t *Token) Reason() string { return t.reason.Load() }

// ThrowIfAborted returns cmn.ErrAborted (wrapping the reason) if the token
// has been aborted, nil otherwise. Every public engine entry point calls
// this first, per spec.md §4.8.
func (t *Token) ThrowIfAborted() error {
	if !t.Aborted() {
		return nil
	}
	reason := t.Reason()
	if reason == "" {
		return cmn.ErrAborted
	}
	return fmt.Errorf("%w: %s", cmn.ErrAborted, reason)
}

// Global is the process-wide shutdown token, per spec.md §9's singleton
// framing (dependency injection is a testing seam -- tests construct their
// own *Token instead of using Global).
var Global = &Token{}
