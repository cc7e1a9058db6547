package subscribe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/docstore"
)

// Subscriber maintains live views of conversation logs for local observers.
// Every subscription is an explicit handle owned by the caller; there is no
// process-wide registry to leak listeners across conversation switches.
type Subscriber struct {
	store docstore.ConversationStore
	log   *zerolog.Logger

	retryDelay time.Duration
}

// New creates a subscriber over the given conversation store.
func New(st docstore.ConversationStore, logger *zerolog.Logger) *Subscriber {
	return &Subscriber{
		store:      st,
		log:        logger,
		retryDelay: time.Second,
	}
}

// Subscription is a handle for one live conversation view.
type Subscription struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Stop ends delivery. Idempotent; once it returns, the observer receives no
// further snapshots.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// Subscribe opens a live view of one conversation. The observer fn is called
// with the snapshot current at subscribe time and then once per subsequent
// write to the conversation, in the store's write order. A subscription that
// drops on the store side (transient error, store restart) is reopened
// automatically until Stop or ctx cancellation.
func (s *Subscriber) Subscribe(ctx context.Context, id docstore.ConversationID, fn func(*docstore.Conversation)) (*Subscription, error) {
	w, err := s.store.WatchConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run(ctx, id, w, fn, sub)
	return sub, nil
}

func (s *Subscriber) run(ctx context.Context, id docstore.ConversationID, w *docstore.Watch, fn func(*docstore.Conversation), sub *Subscription) {
	defer close(sub.done)

	for {
		closed := s.deliver(ctx, w, fn, sub)
		if !closed {
			return
		}

		w = s.reopen(ctx, id, sub)
		if w == nil {
			return
		}
	}
}

// deliver forwards snapshots to the observer until the watch channel closes
// (returns true) or the subscription ends (returns false).
func (s *Subscriber) deliver(ctx context.Context, w *docstore.Watch, fn func(*docstore.Conversation), sub *Subscription) bool {
	for {
		select {
		case snap, ok := <-w.C:
			if !ok {
				return true
			}
			fn(snap)
		case <-sub.stop:
			w.Cancel()
			return false
		case <-ctx.Done():
			w.Cancel()
			return false
		}
	}
}

// reopen retries the watch after a store-side drop. Returns nil once the
// subscription ends or the conversation is gone for good.
func (s *Subscriber) reopen(ctx context.Context, id docstore.ConversationID, sub *Subscription) *docstore.Watch {
	for {
		select {
		case <-sub.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(s.retryDelay):
		}

		w, err := s.store.WatchConversation(ctx, id)
		if err == nil {
			s.log.Debug().Str("conversation_id", string(id)).Msg("subscription reopened")
			return w
		}
		if errors.Is(err, docstore.ErrConversationNotFound) || errors.Is(err, docstore.ErrStoreClosed) {
			s.log.Error().Err(err).Str("conversation_id", string(id)).Msg("subscription ended")
			return nil
		}
		s.log.Warn().Err(err).Str("conversation_id", string(id)).Msg("subscription retry failed")
	}
}
