package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Webhook request headers
const (
	HeaderSignature = "X-Procurement-Signature"
	HeaderEventType = "X-Procurement-Event"
	HeaderEventID   = "X-Procurement-Event-ID"
)

// WebhookConfig configures a WebhookNotifier
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Retries int
}

// WebhookNotifier POSTs lifecycle messages as JSON. When a secret is set the
// body is signed with HMAC-SHA256 in the signature header.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	secret []byte
	logger *zap.Logger
}

// NewWebhookNotifier creates a new WebhookNotifier
func NewWebhookNotifier(cfg WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "procurement-notify/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &WebhookNotifier{
		client: client,
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		logger: logger.Named("webhook"),
	}
}

// EventTypes implements shared.EventHandler
func (n *WebhookNotifier) EventTypes() []string { return lifecycleEvents }

// Handle implements shared.EventHandler
func (n *WebhookNotifier) Handle(ctx context.Context, e shared.DomainEvent) error {
	msg, err := messageFrom(e)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeader(HeaderEventType, msg.EventType).
		SetHeader(HeaderEventID, msg.EventID.String()).
		SetBody(body)
	if len(n.secret) > 0 {
		req.SetHeader(HeaderSignature, "sha256="+Sign(n.secret, body))
	}

	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook answered %d", resp.StatusCode())
	}

	n.logger.Debug("Webhook delivered",
		zap.String("order_id", msg.OrderID.String()),
		zap.String("new_status", msg.NewStatus),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("latency", resp.Time()))
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ shared.EventHandler = (*WebhookNotifier)(nil)
