package client

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/finflow-io/be-invoice-workflow/internal/natsclient"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

// NotificationPublisher publishes workflow notification directives to NATS
// for consumption by the notification delivery service.
//
// Subject convention: notifications.invoices.<category>
// Categories: pm_review, finance_review, info_request, rejection, approval
//
// All publish operations are non-fatal. Errors are logged but never
// propagated, so notification failures never interrupt a transition.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// Publish sends one notification directive. Subject:
// notifications.invoices.<category>
func (p *NotificationPublisher) Publish(ctx context.Context, n repository.Notification) {
	if p.nats == nil {
		return
	}
	if n.RecipientID == "" {
		return
	}

	data, err := json.Marshal(n)
	if err != nil {
		p.log.Warn().Err(err).Str("category", n.Category).Msg("notification: failed to marshal event")
		return
	}

	subject := "notifications.invoices." + n.Category
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("recipient_id", n.RecipientID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("recipient_id", n.RecipientID).
		Msg("notification: event published")
}
