package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/db"
)

const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventUserCreated           = "user.created"
	EventContentViewed         = "content.viewed"
	EventFraudDetected         = "fraud.detected"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Event is the body of a webhook request.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ParseEvent decodes a verified request body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: event type is required", ErrInvalidPayload)
	}
	return ev, nil
}

// SubscriptionID returns data.subscription_id, if present.
func (e Event) SubscriptionID() string {
	id, _ := e.Data["subscription_id"].(string)
	return id
}

// StatusUpdater changes the status of a stored subscription.
type StatusUpdater interface {
	SetStatus(ctx context.Context, id string, status db.Status) (*db.Subscription, error)
}

// Dispatcher routes verified events to their handlers.
type Dispatcher struct {
	subs StatusUpdater
	// IsNotFound reports whether err means the referenced subscription does
	// not exist. Such events are acknowledged without a change.
	IsNotFound func(error) bool
}

func NewDispatcher(subs StatusUpdater, isNotFound func(error) bool) *Dispatcher {
	return &Dispatcher{subs: subs, IsNotFound: isNotFound}
}

// Dispatch handles ev. Unknown event types are logged and acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, platform string, ev Event) error {
	logger := log.With().Str("event_type", ev.Type).Str("platform", platform).Logger()

	switch ev.Type {
	case EventSubscriptionCancelled:
		return d.setStatus(ctx, logger, ev, db.StatusCancelled)
	case EventPaymentFailed:
		return d.setStatus(ctx, logger, ev, db.StatusPastDue)
	case EventFraudDetected:
		logger.Warn().Interface("data", ev.Data).Msg("fraud reported by platform")
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventPaymentSucceeded,
		EventUserCreated, EventContentViewed:
		logger.Info().Interface("data", ev.Data).Msg("webhook event received")
	default:
		logger.Info().Msg("unhandled webhook event type")
	}
	return nil
}

func (d *Dispatcher) setStatus(ctx context.Context, logger zerolog.Logger, ev Event, status db.Status) error {
	id := ev.SubscriptionID()
	if id == "" {
		logger.Info().Msg("webhook event carries no subscription_id")
		return nil
	}

	sub, err := d.subs.SetStatus(ctx, id, status)
	if err != nil {
		if d.IsNotFound != nil && d.IsNotFound(err) {
			logger.Warn().Str("subscription_id", id).Msg("webhook references unknown subscription")
			return nil
		}
		return fmt.Errorf("set status of %s: %w", id, err)
	}

	logger.Info().
		Str("subscription_id", sub.ID).
		Str("status", string(sub.Status)).
		Msg("subscription status updated from webhook")
	return nil
}
