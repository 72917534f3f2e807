// Package notify delivers escalation events to an external webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/metrics"
	"exceptiontracker/src/model"
)

// EscalationEvent is the JSON body posted for every successful escalation.
type EscalationEvent struct {
	ExceptionID     uint           `json:"exception_id"`
	ExceptionNumber string         `json:"exception_number"`
	Title           string         `json:"title"`
	Severity        model.Severity `json:"severity"`
	VerticalID      uint           `json:"vertical_id"`
	Level           int            `json:"escalation_level"`
	EscalatedFrom   *uint          `json:"escalated_from,omitempty"`
	EscalatedTo     *uint          `json:"escalated_to,omitempty"`
	EscalatedBy     uint           `json:"escalated_by"`
	Reason          string         `json:"reason"`
	EscalatedAt     time.Time      `json:"escalated_at"`
}

// WebhookNotifier posts escalation events with resty. A notifier without a
// URL is disabled and Notify is a no-op.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	client := resty.New().
		SetTimeout(cfg.WebhookTimeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, url: cfg.WebhookURL}
}

func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.url != ""
}

// NotifyEscalation delivers ev. Each delivery carries a unique X-Delivery-ID
// so receivers can drop retried duplicates.
func (n *WebhookNotifier) NotifyEscalation(ctx context.Context, ev EscalationEvent) error {
	if !n.Enabled() {
		return nil
	}

	deliveryID := uuid.NewString()
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("X-Delivery-ID", deliveryID).
		SetBody(ev).
		Post(n.url)
	if err != nil {
		metrics.EscalationNotifications.WithLabelValues("error").Inc()
		return fmt.Errorf("post escalation webhook: %w", err)
	}
	if resp.IsError() {
		metrics.EscalationNotifications.WithLabelValues("rejected").Inc()
		return fmt.Errorf("escalation webhook returned %s", resp.Status())
	}

	metrics.EscalationNotifications.WithLabelValues("ok").Inc()
	logger.WithFields(map[string]interface{}{
		"service":      "notify",
		"exception_id": ev.ExceptionID,
		"level":        ev.Level,
		"delivery_id":  deliveryID,
	}).Debug("Escalation webhook delivered")
	return nil
}
