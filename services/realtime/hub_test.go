package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestAudience_Matches(t *testing.T) {
	shopper := Viewer{UserID: "u-1", Roles: []string{"shopper"}}
	mediator := Viewer{UserID: "m-1", Roles: []string{"mediator"}, MediatorCode: "MED_X", ParentCode: "AG_1"}
	ops := Viewer{UserID: "o-1", Roles: []string{"ops"}}

	tests := []struct {
		name     string
		audience *Audience
		viewer   Viewer
		want     bool
	}{
		{"nil audience", nil, ops, false},
		{"empty audience", &Audience{}, ops, false},
		{"broadcast", &Audience{Broadcast: true}, shopper, true},
		{"user id", &Audience{UserIDs: []string{"u-1"}}, shopper, true},
		{"other user", &Audience{UserIDs: []string{"u-2"}}, shopper, false},
		{"role intersect case-insensitive", &Audience{Roles: []string{"OPS", "admin"}}, ops, true},
		{"mediator code case-insensitive", &Audience{MediatorCodes: []string{"med_x"}}, mediator, true},
		{"parent code", &Audience{ParentCodes: []string{"ag_1"}}, mediator, true},
		{"code list does not leak to viewer without code", &Audience{AgencyCodes: []string{""}}, shopper, false},
		{"brand code mismatch", &Audience{BrandCodes: []string{"BR_1"}}, mediator, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.audience.Matches(tt.viewer))
		})
	}
}

func TestMemoryHub_EmptyAudienceDeliveredToNobody(t *testing.T) {
	hub := NewMemoryHub(nil)

	viewers := []Viewer{
		{UserID: "u-1", Roles: []string{"shopper"}},
		{UserID: "o-1", Roles: []string{"ops", "admin"}},
		{UserID: "m-1", Roles: []string{"mediator"}, MediatorCode: "MED_X"},
	}
	var mu sync.Mutex
	delivered := 0
	for _, v := range viewers {
		v := v
		hub.Subscribe(func(e Event) {
			if e.Audience.Matches(v) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		})
	}

	hub.Publish(context.Background(), Event{Type: EventOrderUpdated, Audience: &Audience{}})
	hub.Publish(context.Background(), Event{Type: EventOrderUpdated})
	require.Equal(t, 0, delivered)

	hub.Publish(context.Background(), Event{Type: EventOrderUpdated, Audience: &Audience{Roles: []string{"ops"}}})
	require.Equal(t, 1, delivered)
}

func TestMemoryHub_PanickingSubscriberIsIsolated(t *testing.T) {
	hub := NewMemoryHub(nil)

	var got []string
	hub.Subscribe(func(e Event) { panic("broken subscriber") })
	hub.Subscribe(func(e Event) { got = append(got, e.Type) })

	require.NotPanics(t, func() {
		hub.Publish(context.Background(), Event{Type: EventWalletUpdated, Audience: &Audience{Broadcast: true}})
	})
	require.Equal(t, []string{EventWalletUpdated}, got)
}

func TestMemoryHub_Unsubscribe(t *testing.T) {
	hub := NewMemoryHub(nil)

	calls := 0
	unsubscribe := hub.Subscribe(func(e Event) { calls++ })
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Publish(context.Background(), Event{Type: EventPing})
	unsubscribe()
	unsubscribe()
	hub.Publish(context.Background(), Event{Type: EventPing})

	require.Equal(t, 1, calls)
	require.Equal(t, 0, hub.SubscriberCount())
}

func TestMemoryHub_SubscriberMayUnsubscribeItself(t *testing.T) {
	hub := NewMemoryHub(nil)

	var unsubscribe func()
	calls := 0
	unsubscribe = hub.Subscribe(func(e Event) {
		calls++
		unsubscribe()
	})

	hub.Publish(context.Background(), Event{Type: EventPing})
	hub.Publish(context.Background(), Event{Type: EventPing})
	require.Equal(t, 1, calls)
}

func TestDecodeEvent_TypedPayload(t *testing.T) {
	in := Event{
		Type:     EventOrderUpdated,
		At:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:  OrderPayload{OrderID: 99, Status: "APPROVED", PrevStatus: "UNDER_REVIEW"},
		Audience: &Audience{UserIDs: []string{"u-1"}},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := decodeEvent(b)
	require.NoError(t, err)
	require.Equal(t, in.Payload, out.Payload)
	require.Equal(t, in.Audience, out.Audience)
	require.True(t, in.At.Equal(out.At))
}

func TestRedisHub_FallsBackToLocalDelivery(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewRedisHub(NewMemoryHub(nil), rdb, "realtime:test")

	var got []Event
	hub.Subscribe(func(e Event) { got = append(got, e) })
	hub.Publish(context.Background(), Event{Type: EventWalletUpdated, Audience: &Audience{Broadcast: true}})

	require.Len(t, got, 1)
	require.Equal(t, EventWalletUpdated, got[0].Type)
	require.NoError(t, hub.Stop(context.Background()))
}

// acceptingRedis answers every command with success without a server, the
// way a reachable redis with no other subscribers would.
type acceptingRedis struct {
	mu        sync.Mutex
	published int
}

func (a *acceptingRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (a *acceptingRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "publish" {
			a.mu.Lock()
			a.published++
			a.mu.Unlock()
		}
		return nil
	}
}

func (a *acceptingRedis) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error { return nil }
}

func TestRedisHub_DeliversLocallyWhileUnsubscribed(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	relay := &acceptingRedis{}
	rdb.AddHook(relay)

	// Start was never called or failed, so nothing reads the channel
	hub := NewRedisHub(NewMemoryHub(nil), rdb, "realtime:test")
	require.False(t, hub.Subscribed())

	var got []Event
	hub.Subscribe(func(e Event) { got = append(got, e) })
	hub.Publish(context.Background(), Event{Type: EventOrderUpdated, Audience: &Audience{Broadcast: true}})

	require.Len(t, got, 1)
	require.Equal(t, EventOrderUpdated, got[0].Type)
	// other replicas still get it through the relay
	require.Equal(t, 1, relay.published)
}
