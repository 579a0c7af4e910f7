package handlers

import (
	"context"
	"time"

	"mining-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
)

const maxEventBatch = 500

// EventFeed is the outbox as seen by the external notifier.
type EventFeed interface {
	ListPendingEvents(ctx context.Context, limit int) ([]models.DomainEvent, error)
	MarkEventsDelivered(ctx context.Context, ids []string, at time.Time) error
}

// SetupEventRoutes exposes the notification outbox to the notifier, which
// reads a batch and acknowledges what it delivered.
func SetupEventRoutes(app *fiber.App, feed EventFeed, clock clockwork.Clock) {
	events := app.Group("/internal/events")

	events.Get("/", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > maxEventBatch {
			return badRequest(c, "limit must be between 1 and 500")
		}
		pending, err := feed.ListPendingEvents(c.UserContext(), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"events": pending})
	})

	events.Post("/ack", func(c *fiber.Ctx) error {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if len(req.IDs) > maxEventBatch {
			return badRequest(c, "too many ids")
		}
		if err := feed.MarkEventsDelivered(c.UserContext(), req.IDs, clock.Now().UTC()); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"acknowledged": len(req.IDs)})
	})
}
