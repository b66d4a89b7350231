package realtime

import (
	"context"
	"sync"
	"time"

	"cashback-controlplane/pkg/logger"

	"go.uber.org/zap"
)

// Subscriber is invoked synchronously for every published event. It decides
// on its own whether the event is meant for it.
type Subscriber func(Event)

// Hub fans events out to subscribers. Publishers never see subscriber
// failures.
type Hub interface {
	Subscribe(fn Subscriber) (unsubscribe func())
	Publish(ctx context.Context, e Event)
}

type MemoryHub struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]Subscriber
	metrics *metrics
}

func NewMemoryHub(m *metrics) *MemoryHub {
	if m == nil {
		m = newMetrics(nil)
	}
	return &MemoryHub{
		subs:    make(map[uint64]Subscriber),
		metrics: m,
	}
}

func (h *MemoryHub) Subscribe(fn Subscriber) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()
	h.metrics.subscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			h.metrics.subscribers.Dec()
		})
	}
}

func (h *MemoryHub) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.metrics.published.WithLabelValues(e.Type).Inc()
	h.deliver(ctx, e)
}

// deliver calls subscribers outside the lock so a subscriber may unsubscribe
// itself from within its callback.
func (h *MemoryHub) deliver(ctx context.Context, e Event) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		h.invoke(ctx, fn, e)
	}
}

func (h *MemoryHub) invoke(ctx context.Context, fn Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.panics.Inc()
			logger.FromContext(ctx).Error("realtime subscriber panicked",
				zap.String("event_type", e.Type),
				zap.Any("panic", r),
			)
		}
	}()
	fn(e)
}

func (h *MemoryHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
