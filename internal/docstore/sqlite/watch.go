package sqlite

import (
	"sync"

	"chatsync/internal/docstore"
)

// watchHub fans committed snapshots out to watchers, keyed by conversation id.
type watchHub struct {
	mu       sync.Mutex
	watchers map[docstore.ConversationID]map[*watcher]struct{}
	closed   bool
}

func newWatchHub() *watchHub {
	return &watchHub{
		watchers: make(map[docstore.ConversationID]map[*watcher]struct{}),
	}
}

// add registers a watcher seeded with the current snapshot and returns its handle.
func (h *watchHub) add(id docstore.ConversationID, initial *docstore.Conversation) (*docstore.Watch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, docstore.ErrStoreClosed
	}

	w := newWatcher(initial)
	set, ok := h.watchers[id]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[id] = set
	}
	set[w] = struct{}{}

	cancel := func() {
		h.remove(id, w)
		w.close()
	}
	return docstore.NewWatch(w.ch, cancel), nil
}

// publish enqueues a snapshot for every watcher of the conversation.
// Enqueueing never blocks on slow consumers; each watcher drains its own queue.
func (h *watchHub) publish(id docstore.ConversationID, snap *docstore.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers[id] {
		w.enqueue(snap)
	}
}

func (h *watchHub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *watchHub) remove(id docstore.ConversationID, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.watchers[id]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(h.watchers, id)
		}
	}
}

// closeAll ends every watch; used on store shutdown.
func (h *watchHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	var all []*watcher
	for _, set := range h.watchers {
		for w := range set {
			all = append(all, w)
		}
	}
	h.watchers = make(map[docstore.ConversationID]map[*watcher]struct{})
	h.mu.Unlock()

	for _, w := range all {
		w.close()
	}
}

// watcher buffers snapshots for one subscriber and delivers them in order
// from its own goroutine, so a stalled subscriber never stalls the store.
type watcher struct {
	ch   chan *docstore.Conversation
	stop chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*docstore.Conversation
	stopped bool

	wg sync.WaitGroup
}

func newWatcher(initial *docstore.Conversation) *watcher {
	w := &watcher{
		ch:    make(chan *docstore.Conversation),
		stop:  make(chan struct{}),
		queue: []*docstore.Conversation{initial},
	}
	w.cond = sync.NewCond(&w.mu)
	w.wg.Add(1)
	go w.pump()
	return w
}

func (w *watcher) enqueue(snap *docstore.Conversation) {
	w.mu.Lock()
	if !w.stopped {
		w.queue = append(w.queue, snap)
		w.cond.Signal()
	}
	w.mu.Unlock()
}

func (w *watcher) pump() {
	defer w.wg.Done()
	defer close(w.ch)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		select {
		case w.ch <- next:
		case <-w.stop:
			return
		}
	}
}

// close stops delivery and waits for the pump to exit, so no snapshot is
// sent after it returns. Safe to call more than once.
func (w *watcher) close() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stop)
	w.cond.Broadcast()
	w.wg.Wait()
}
