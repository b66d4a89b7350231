package realtime

import (
	"context"
	"net/http"
	"time"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/middleware"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const streamBuffer = 64

type StreamHandler struct {
	hub       Hub
	keepalive time.Duration
	metrics   *metrics
	done      <-chan struct{}
}

func NewStreamHandler(hub Hub, keepalive time.Duration, m *metrics, done <-chan struct{}) *StreamHandler {
	if keepalive <= 0 {
		keepalive = 25 * time.Second
	}
	if m == nil {
		m = newMetrics(nil)
	}
	return &StreamHandler{hub: hub, keepalive: keepalive, metrics: m, done: done}
}

func ViewerFrom(p *middleware.Principal) Viewer {
	return Viewer{
		UserID:       p.UserID,
		Roles:        p.Roles,
		AgencyCode:   p.AgencyCode,
		MediatorCode: p.MediatorCode,
		BrandCode:    p.BrandCode,
		ParentCode:   p.ParentCode,
	}
}

// Stream serves one server-sent-events connection: a ready frame, keepalive
// pings and every event whose audience matches the caller.
func (h *StreamHandler) Stream(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("missing principal", nil))
		return
	}
	h.serve(c.Request.Context(), c.Writer, ViewerFrom(p))
}

func (h *StreamHandler) serve(ctx context.Context, w gin.ResponseWriter, viewer Viewer) {
	connID := uuid.NewString()
	log := zap.L().With(zap.String("connection_id", connID), zap.String("user_id", viewer.UserID))

	events := make(chan Event, streamBuffer)
	unsubscribe := h.hub.Subscribe(func(e Event) {
		if !e.Audience.Matches(viewer) {
			return
		}
		select {
		case events <- e:
		default:
			h.metrics.dropped.WithLabelValues(e.Type).Inc()
		}
	})
	defer unsubscribe()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(event string, data any) bool {
		if err := sse.Encode(w, sse.Event{Event: event, Data: data}); err != nil {
			log.Debug("realtime write failed", zap.Error(err))
			return false
		}
		w.Flush()
		return true
	}

	if !write(EventReady, gin.H{"connection_id": connID, "at": time.Now().UTC()}) {
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case t := <-ticker.C:
			if !write(EventPing, gin.H{"at": t.UTC()}) {
				return
			}
		case e := <-events:
			if !write(e.Type, gin.H{"type": e.Type, "at": e.At, "payload": e.Payload}) {
				return
			}
			h.metrics.delivered.WithLabelValues(e.Type).Inc()
		}
	}
}
