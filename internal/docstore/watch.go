package docstore

import "sync"

// Watch is a live subscription handle for one conversation. Snapshots arrive
// on C in the store's write order. The store closes C when the watch is
// canceled or the store shuts down; a close without a prior Cancel call means
// the subscription ended on the store side and may be reopened.
type Watch struct {
	// C carries full conversation snapshots, starting with the state at
	// subscribe time.
	C <-chan *Conversation

	cancel   func()
	stopOnce sync.Once
}

// NewWatch wraps a snapshot channel and a cancel function into a handle.
// Intended for store implementations.
func NewWatch(c <-chan *Conversation, cancel func()) *Watch {
	return &Watch{C: c, cancel: cancel}
}

// Cancel stops delivery. Idempotent; once it returns, no further snapshot is
// sent and C is closed. Queued snapshots not yet received are dropped.
func (w *Watch) Cancel() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
}
