package realtime

import (
	"context"
	"sync"
)

// MemoryBroker serves a single process.
type MemoryBroker struct {
	mu       sync.Mutex
	subs     map[string]map[*memorySub]struct{}
	watchers sync.WaitGroup
}

type memorySub struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, userID string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[userID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (<-chan Event, func()) {
	sub := &memorySub{ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*memorySub]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], sub)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(sub.ch)
			close(sub.done)
			b.mu.Unlock()
		})
	}
	// The watcher exits on whichever comes first: ctx ending or cancel.
	b.watchers.Add(1)
	go func() {
		defer b.watchers.Done()
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel
}
