package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Gateway interface {
	Send(ctx context.Context, p PushPayload) error
}

// WebhookGateway posts pushes to an HTTP endpoint.
type WebhookGateway struct {
	client *resty.Client
	url    string
}

func NewWebhookGateway(url string, timeout time.Duration) *WebhookGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookGateway{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (g *WebhookGateway) Send(ctx context.Context, p PushPayload) error {
	if g.url == "" {
		zap.L().Debug("no push gateway configured, dropping push", zap.String("user_id", p.UserID))
		return nil
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(p).
		Post(g.url)
	if err != nil {
		return fmt.Errorf("push gateway request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode())
	}
	return nil
}
