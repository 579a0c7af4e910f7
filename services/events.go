package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mining-reward-system/models"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Event is a domain fact handed to the notification boundary. The core never
// delivers it to users itself.
type Event struct {
	Type       models.EventType
	UserID     string
	OccurredAt time.Time
	Amount     float64
	Attrs      map[string]string
}

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventStore is the outbox write side of the store.
type EventStore interface {
	AppendEvent(ctx context.Context, event *models.DomainEvent) error
}

// OutboxPublisher writes events to the domain_events table where the external
// notifier picks them up.
type OutboxPublisher struct {
	store   EventStore
	printer *message.Printer
}

func NewOutboxPublisher(store EventStore, lang language.Tag) *OutboxPublisher {
	return &OutboxPublisher{store: store, printer: message.NewPrinter(lang)}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	payload := map[string]interface{}{"amount": event.Amount}
	for k, v := range event.Attrs {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	return p.store.AppendEvent(ctx, &models.DomainEvent{
		Type:       event.Type,
		UserID:     event.UserID,
		Message:    RenderEventMessage(p.printer, event),
		Payload:    string(raw),
		OccurredAt: event.OccurredAt,
	})
}

// RenderEventMessage builds the user-facing text for an event with
// locale-aware number formatting.
func RenderEventMessage(printer *message.Printer, event Event) string {
	switch event.Type {
	case models.EventRecoveryMilestone:
		return printer.Sprintf("Recovery milestone reached: %.2f coins restored to your balance", event.Amount)
	case models.EventBurnApplied:
		return printer.Sprintf("%.2f coins burned after 48 hours without mining", event.Amount)
	case models.EventGroupRewardClaimed:
		return printer.Sprintf("You claimed %.2f coins from %s", event.Amount, event.Attrs["group_name"])
	case models.EventBonusTaskCompleted:
		return printer.Sprintf("%s completed, %.2f coins ready to claim", event.Attrs["title"], event.Amount)
	case models.EventBonusTaskClaimed:
		return printer.Sprintf("You claimed %.2f coins for %s", event.Amount, event.Attrs["title"])
	}
	return printer.Sprintf("%s: %.2f", string(event.Type), event.Amount)
}

// LogPublisher writes events to the process log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	zap.L().Info("domain event",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.Float64("amount", event.Amount),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("attrs", event.Attrs),
	)
	return nil
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publish is used after a successful write. A notification failure never
// undoes the write, so it is only logged.
func publish(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		zap.L().Warn("failed to publish domain event",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}
