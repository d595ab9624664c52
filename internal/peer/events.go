package peer

import "sync"

// eventBus delivers immutable observation records to subscribers in
// arrival order, per design note: a mapping from event-kind to a set of
// callbacks, iterated under a lock to avoid mutation-during-dispatch.
type eventBus struct {
	mu        sync.Mutex
	observers map[string][]func(any)
}

func newEventBus() *eventBus {
	return &eventBus{observers: make(map[string][]func(any))}
}

func (b *eventBus) subscribe(kind string, cb func(any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[kind] = append(b.observers[kind], cb)
}

func (b *eventBus) emit(kind string, payload any) {
	b.mu.Lock()
	cbs := make([]func(any), len(b.observers[kind]))
	copy(cbs, b.observers[kind])
	b.mu.Unlock()

	for _, cb := range cbs {
		cb(payload)
	}
}
