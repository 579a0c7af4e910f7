package handlers

import (
	"mining-reward-system/middleware"
	"mining-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGroupRoutes(app *fiber.App, groupService *services.GroupService) {
	app.Get("/user/groups", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		groups, err := groupService.ListUserGroups(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"groups": groups})
	})

	groups := app.Group("/groups", middleware.UserContextMiddleware())

	groups.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		group, err := groupService.CreateGroup(c.UserContext(), c.Locals("user_id").(string), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(group)
	})

	groups.Post("/join", func(c *fiber.Ctx) error {
		var req struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		group, err := groupService.JoinGroup(c.UserContext(), c.Locals("user_id").(string), req.Code)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(group)
	})

	groups.Delete("/:id/membership", func(c *fiber.Ctx) error {
		if err := groupService.LeaveGroup(c.UserContext(), c.Locals("user_id").(string), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	groups.Get("/:id/summary", func(c *fiber.Ctx) error {
		summary, err := groupService.GetGroupSummary(c.UserContext(), c.Params("id"), c.Locals("user_id").(string), c.Query("date"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(summary)
	})

	// Clients that track mines locally report their count for a day; the
	// stored value only ever goes up.
	groups.Put("/:id/activity", func(c *fiber.Ctx) error {
		var req struct {
			Date       string `json:"date"`
			MinesToday int    `json:"mines_today"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		row, err := groupService.ReportDailyMines(c.UserContext(), c.Params("id"), c.Locals("user_id").(string), req.Date, req.MinesToday)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(row)
	})

	groups.Post("/:id/claim", func(c *fiber.Ctx) error {
		claim, err := groupService.ClaimGroupReward(c.UserContext(), c.Params("id"), c.Locals("user_id").(string))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(claim)
	})
}
