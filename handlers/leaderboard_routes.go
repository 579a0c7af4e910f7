package handlers

import (
	"mining-reward-system/models"
	"mining-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, board *services.Leaderboard) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		period := models.LeaderboardPeriod(c.Query("period", string(models.LeaderboardPeriodAll)))
		snapshot, err := board.Current(c.UserContext(), period)
		if err != nil {
			return respondError(c, err)
		}

		// Cached for the poll interval used by clients
		c.Set("Cache-Control", "public, max-age=30")
		return c.JSON(snapshot)
	})
}
