package handlers

import (
	"mining-reward-system/middleware"
	"mining-reward-system/models"
	"mining-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBonusRoutes(app *fiber.App, bonusService *services.BonusService, watcher *services.PendingBonusWatcher, authClient *services.AuthServiceClient) {
	// EventSource cannot send headers, so the stream authenticates separately
	// and is registered before the header-based group.
	app.Get("/user/bonus-tasks/pending/stream", middleware.SSEAuthMiddleware(authClient), watcher.StreamPendingBonusesSSE)

	tasks := app.Group("/user/bonus-tasks", middleware.UserContextMiddleware())

	tasks.Get("/", func(c *fiber.Ctx) error {
		views, err := bonusService.ListTasks(c.UserContext(), c.Locals("user_id").(string))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"tasks": views})
	})

	tasks.Get("/catalog", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"templates": services.BonusCatalog()})
	})

	tasks.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			TaskType models.BonusTaskType `json:"task_type"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		view, err := bonusService.IssueTask(c.UserContext(), c.Locals("user_id").(string), req.TaskType)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	})

	tasks.Get("/pending", func(c *fiber.Ctx) error {
		count, err := bonusService.CountPending(c.UserContext(), c.Locals("user_id").(string))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"count": count})
	})

	tasks.Post("/:id/complete", func(c *fiber.Ctx) error {
		view, err := bonusService.CompleteTask(c.UserContext(), c.Locals("user_id").(string), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})

	tasks.Post("/:id/claim", func(c *fiber.Ctx) error {
		view, err := bonusService.ClaimTask(c.UserContext(), c.Locals("user_id").(string), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})
}
