package realtime

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestStream_DeliversScopedEventsAndPings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewMemoryHub(nil)
	h := NewStreamHandler(hub, 20*time.Millisecond, nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.serve(ctx, c.Writer, Viewer{UserID: "u-1", Roles: []string{"shopper"}})
	}()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), Event{
		Type:     EventOrderUpdated,
		Payload:  OrderPayload{OrderID: 7, Status: "ORDERED"},
		Audience: &Audience{UserIDs: []string{"u-1"}},
	})
	hub.Publish(context.Background(), Event{
		Type:     EventWalletUpdated,
		Payload:  WalletPayload{OwnerID: "someone-else"},
		Audience: &Audience{UserIDs: []string{"u-2"}},
	})

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	require.Contains(t, body, "event:ready")
	require.Contains(t, body, "event:ping")
	require.Contains(t, body, "event:order.updated")
	require.Contains(t, body, `"order_id":"7"`)
	require.NotContains(t, body, "someone-else")
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, 0, hub.SubscriberCount())
}

func TestStream_StopsOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewMemoryHub(nil)
	shutdown := make(chan struct{})
	h := NewStreamHandler(hub, time.Hour, nil, shutdown)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.serve(context.Background(), c.Writer, Viewer{UserID: "u-1"})
	}()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	close(shutdown)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
	require.Equal(t, 0, hub.SubscriberCount())
}
