package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cashback-controlplane/pkg/taskname"
	"cashback-controlplane/services/order"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	fn    func(t *asynq.Task) error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.fn != nil {
		if err := f.fn(t); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) payloads(t *testing.T) []PushPayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PushPayload, 0, len(f.tasks))
	for _, task := range f.tasks {
		require.Equal(t, taskname.NotificationPush, task.Type())
		var p PushPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		out = append(out, p)
	}
	return out
}

type fakeFlags struct {
	enabled bool
}

func (f fakeFlags) IsEnabled(context.Context, string, string, bool) bool {
	return f.enabled
}

type fakeGateway struct {
	sent []PushPayload
	err  error
}

func (g *fakeGateway) Send(_ context.Context, p PushPayload) error {
	g.sent = append(g.sent, p)
	return g.err
}

func change(to order.Status) order.StatusChange {
	return order.StatusChange{
		OrderID:       42,
		Code:          "ORD-250301-001AB",
		ShopperID:     "shopper-1",
		From:          order.StatusRewardPending,
		To:            to,
		CashbackPaise: 7050,
	}
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestFormatRupees(t *testing.T) {
	require.Equal(t, "₹70.50", FormatRupees(7050))
	require.Equal(t, "₹0.05", FormatRupees(5))
	require.Equal(t, "₹0.00", FormatRupees(0))
	require.Equal(t, "₹12345.00", FormatRupees(1234500))
}

func TestDispatcher_EnqueuesPush(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: true, Workers: 2})
	d.Start()

	d.OrderStatusChanged(context.Background(), change(order.StatusCompleted))
	d.OrderStatusChanged(context.Background(), change(order.StatusRedirected))
	stop(t, d)

	got := enq.payloads(t)
	require.Len(t, got, 1)
	require.Equal(t, "shopper-1", got[0].UserID)
	require.Equal(t, "42", got[0].OrderID)
	require.Equal(t, "COMPLETED", got[0].Status)
	require.Contains(t, got[0].Body, "₹70.50")
}

func TestDispatcher_Disabled(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: false})
	d.Start()

	d.OrderStatusChanged(context.Background(), change(order.StatusApproved))
	stop(t, d)

	require.Empty(t, enq.payloads(t))
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: true, Buffer: 1, Workers: 1})

	// workers not started yet, so only the first job fits
	for i := 0; i < 3; i++ {
		d.OrderStatusChanged(context.Background(), change(order.StatusApproved))
	}

	d.Start()
	stop(t, d)
	require.Len(t, enq.payloads(t), 1)
}

func TestDispatcher_DropsAfterStop(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: true, Workers: 1})
	d.Start()
	stop(t, d)

	require.NotPanics(t, func() {
		d.OrderStatusChanged(context.Background(), change(order.StatusCompleted))
	})
	// a second Stop is harmless
	stop(t, d)
	require.Empty(t, enq.payloads(t))
}

func TestDispatcher_ConcurrentSendersDuringStop(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: true, Buffer: 4, Workers: 1})
	d.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.OrderStatusChanged(context.Background(), change(order.StatusApproved))
			}
		}()
	}
	stop(t, d)
	wg.Wait()
}

func TestDispatcher_SurvivesEnqueueFailures(t *testing.T) {
	calls := 0
	enq := &fakeEnqueuer{fn: func(*asynq.Task) error {
		calls++
		switch calls {
		case 1:
			panic("boom")
		case 2:
			return errors.New("redis down")
		}
		return nil
	}}
	d := NewDispatcher(enq, DispatcherConfig{Enabled: true, Workers: 1})
	d.Start()

	for i := 0; i < 3; i++ {
		d.OrderStatusChanged(context.Background(), change(order.StatusApproved))
	}
	stop(t, d)

	require.Equal(t, 3, calls)
	require.Len(t, enq.payloads(t), 1)
}

func TestHandlePush(t *testing.T) {
	p := PushPayload{UserID: "shopper-1", OrderID: "42", Title: "Cashback credited"}
	task, err := NewPushTask(p, "notifications")
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		gw := &fakeGateway{}
		require.NoError(t, HandlePush(gw, fakeFlags{enabled: true})(context.Background(), task))
		require.Len(t, gw.sent, 1)
		require.Equal(t, "shopper-1", gw.sent[0].UserID)
	})

	t.Run("flag off skips", func(t *testing.T) {
		gw := &fakeGateway{}
		require.NoError(t, HandlePush(gw, fakeFlags{enabled: false})(context.Background(), task))
		require.Empty(t, gw.sent)
	})

	t.Run("gateway failure is retried", func(t *testing.T) {
		gw := &fakeGateway{err: errors.New("503")}
		require.Error(t, HandlePush(gw, fakeFlags{enabled: true})(context.Background(), task))
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		bad := asynq.NewTask(taskname.NotificationPush, []byte("{"))
		err := HandlePush(&fakeGateway{}, fakeFlags{enabled: true})(context.Background(), bad)
		require.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestWebhookGateway(t *testing.T) {
	var (
		mu       sync.Mutex
		received PushPayload
		status   = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	gw := NewWebhookGateway(srv.URL, time.Second)
	require.NoError(t, gw.Send(context.Background(), PushPayload{UserID: "shopper-1", Body: "hi"}))

	mu.Lock()
	require.Equal(t, "shopper-1", received.UserID)
	status = http.StatusInternalServerError
	mu.Unlock()

	require.Error(t, gw.Send(context.Background(), PushPayload{UserID: "shopper-1"}))

	require.NoError(t, NewWebhookGateway("", 0).Send(context.Background(), PushPayload{}))
}
