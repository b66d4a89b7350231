package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cashback-controlplane/pkg/featureflags"
	"cashback-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PushPayload is the body of a notification:push task and of the gateway call.
type PushPayload struct {
	UserID  string    `json:"user_id"`
	OrderID string    `json:"order_id"`
	Code    string    `json:"code"`
	Status  string    `json:"status"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	At      time.Time `json:"at"`
}

func NewPushTask(p PushPayload, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.NotificationPush, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// HandlePush delivers one push through the gateway. Users with the
// push_notifications flag off are skipped without error.
func HandlePush(gw Gateway, flags featureflags.FeatureFlag) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p PushPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// a malformed payload never becomes valid, so do not retry it
			return fmt.Errorf("decode push payload: %v: %w", err, asynq.SkipRetry)
		}

		if !flags.IsEnabled(ctx, p.UserID, featureflags.PushNotifications, true) {
			zap.L().Debug("push notifications disabled for user", zap.String("user_id", p.UserID))
			return nil
		}

		if err := gw.Send(ctx, p); err != nil {
			zap.L().Warn("push delivery failed",
				zap.String("user_id", p.UserID),
				zap.String("order_id", p.OrderID),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}
