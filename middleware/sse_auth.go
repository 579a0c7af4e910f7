package middleware

import (
	"strings"

	"mining-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SSEAuthMiddleware authenticates event streams, which browsers open without
// custom headers. The `token` and `device_id` query params are validated with
// the auth service. A request that already carries X-User-ID from the gateway
// is passed through unchanged.
//
// Usage:
//
//	app.Get("/user/bonus-tasks/pending/stream", middleware.SSEAuthMiddleware(authClient), watcher.StreamPendingBonusesSSE)
func SSEAuthMiddleware(authClient *services.AuthServiceClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := strings.TrimSpace(c.Get("X-User-ID")); userID != "" {
			c.Locals("user_id", userID)
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token or device_id in query",
			})
		}
		if authClient == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		resp, err := authClient.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			zap.L().Warn("[SSE_AUTH] token validation failed",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		c.Locals("user_id", resp.UserID)
		c.Locals("device_id", resp.DeviceID)
		return c.Next()
	}
}
