package handlers

import (
	"mining-reward-system/middleware"
	"mining-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBurnRoutes(app *fiber.App, burnService *services.BurnService) {
	app.Get("/user/burn-status", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		status, err := burnService.GetBurnStatus(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(status)
	})
}
