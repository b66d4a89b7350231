package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"cashback-controlplane/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RedisHub relays events through a redis pub/sub channel so every replica
// delivers every event to its own local subscribers.
type RedisHub struct {
	local   *MemoryHub
	rdb     redis.UniversalClient
	channel string

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	// subscribed is true while the relay loop is reading the channel
	subscribed atomic.Bool
}

func NewRedisHub(local *MemoryHub, rdb redis.UniversalClient, channel string) *RedisHub {
	return &RedisHub{local: local, rdb: rdb, channel: channel}
}

func (h *RedisHub) Subscribe(fn Subscriber) func() {
	return h.local.Subscribe(fn)
}

// Publish falls back to local delivery when redis is unreachable or this
// replica is not subscribed to the relay, so a single replica keeps working
// without it.
func (h *RedisHub) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.local.metrics.published.WithLabelValues(e.Type).Inc()

	b, err := json.Marshal(e)
	if err == nil {
		err = h.rdb.Publish(ctx, h.channel, b).Err()
	}
	switch {
	case err != nil:
		logger.FromContext(ctx).Warn("realtime relay unavailable, delivering locally",
			zap.String("event_type", e.Type), zap.Error(err))
		h.local.deliver(ctx, e)
	case !h.subscribed.Load():
		h.local.deliver(ctx, e)
	}
}

// Subscribed reports whether events published to redis come back to this
// replica's subscribers.
func (h *RedisHub) Subscribed() bool {
	return h.subscribed.Load()
}

// Start subscribes to the relay channel. It returns once the subscription is
// confirmed or ctx is done.
func (h *RedisHub) Start(ctx context.Context) error {
	pubsub := h.rdb.Subscribe(ctx, h.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, runCtx := errgroup.WithContext(runCtx)

	h.mu.Lock()
	h.cancel = cancel
	h.group = g
	h.mu.Unlock()

	g.Go(func() error {
		<-runCtx.Done()
		return pubsub.Close()
	})
	h.subscribed.Store(true)
	g.Go(func() error {
		defer h.subscribed.Store(false)
		ch := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				e, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					zap.L().Warn("dropping malformed realtime event", zap.Error(err))
					continue
				}
				h.local.deliver(runCtx, e)
			}
		}
	})

	zap.L().Info("realtime relay subscribed", zap.String("channel", h.channel))
	return nil
}

func (h *RedisHub) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, g := h.cancel, h.group
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
