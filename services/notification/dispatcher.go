package notification

import (
	"context"
	"strconv"
	"sync"
	"time"

	"cashback-controlplane/pkg/task"
	"cashback-controlplane/services/order"

	"go.uber.org/zap"
)

type DispatcherConfig struct {
	Enabled bool
	Queue   string
	Buffer  int
	Workers int
}

// Dispatcher turns status changes into push tasks off the request path. The
// queue is bounded; when it is full the notification is dropped.
type Dispatcher struct {
	enqueuer task.Enqueuer
	cfg      DispatcherConfig
	jobs     chan order.StatusChange
	wg       sync.WaitGroup
	now      func() time.Time

	// mu guards stopped and the close of jobs against late senders
	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(enqueuer task.Enqueuer, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue == "" {
		cfg.Queue = "notifications"
	}
	return &Dispatcher{
		enqueuer: enqueuer,
		cfg:      cfg,
		jobs:     make(chan order.StatusChange, cfg.Buffer),
		now:      time.Now,
	}
}

// OrderStatusChanged implements order.Notifier. It never blocks. Changes
// arriving after Stop are dropped.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, change order.StatusChange) {
	if !d.cfg.Enabled {
		return
	}
	if _, _, ok := messageFor(change); !ok {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		zap.L().Warn("notification dispatcher stopped, dropping push",
			zap.Int64("order_id", change.OrderID),
			zap.String("status", string(change.To)),
		)
		return
	}

	select {
	case d.jobs <- change:
	default:
		zap.L().Warn("notification queue full, dropping push",
			zap.Int64("order_id", change.OrderID),
			zap.String("status", string(change.To)),
		)
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Stop drains queued jobs and waits for the workers, or gives up when ctx
// is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for change := range d.jobs {
		d.dispatch(change)
	}
}

func (d *Dispatcher) dispatch(change order.StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notification dispatch panicked", zap.Int64("order_id", change.OrderID), zap.Any("panic", r))
		}
	}()

	title, body, _ := messageFor(change)
	t, err := NewPushTask(PushPayload{
		UserID:  change.ShopperID,
		OrderID: strconv.FormatInt(change.OrderID, 10),
		Code:    change.Code,
		Status:  string(change.To),
		Title:   title,
		Body:    body,
		At:      d.now().UTC(),
	}, d.cfg.Queue)
	if err != nil {
		zap.L().Error("failed to build push task", zap.Int64("order_id", change.OrderID), zap.Error(err))
		return
	}

	// the originating request may already be finished
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := d.enqueuer.Enqueue(ctx, t); err != nil {
		zap.L().Warn("failed to enqueue push", zap.Int64("order_id", change.OrderID), zap.Error(err))
	}
}
