package bus

import (
	"context"
	"sync"
	"time"
)

// LocalBus is the in-process default: handlers fan out asynchronously so a
// slow subscriber never blocks the publisher.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func NewLocalBus() *LocalBus { return &LocalBus{handlers: map[string]map[int]Handler{}} }

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Topic]))
	for _, h := range b.handlers[e.Topic] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, h := range hs {
		go h(ctx, e)
	}
	return nil
}

// Subscribe registers a handler under a unique id so unsubscribing one
// handler never disturbs its siblings.
func (b *LocalBus) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[topic] == nil {
		b.handlers[topic] = map[int]Handler{}
	}
	b.handlers[topic][id] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}, nil
}

func (b *LocalBus) Close() error { return nil }
