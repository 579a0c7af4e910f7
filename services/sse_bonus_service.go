package services

import (
	"bufio"
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StreamPendingBonusesSSE streams the caller's pending bonus count as
// server-sent events. Each connection owns one Subscription that is cancelled
// when the client goes away.
func (w *PendingBonusWatcher) StreamPendingBonusesSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	serverDone := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(bw *bufio.Writer) {
		counts := make(chan int64, 1)
		sub := w.Subscribe(context.Background(), userID, func(count int64) {
			// keep only the newest count when the writer lags
			select {
			case <-counts:
			default:
			}
			counts <- count
		})
		defer sub.Cancel()

		// Initial keepalive (comment event)
		_, _ = bw.WriteString(":\n\n")
		if err := bw.Flush(); err != nil {
			return
		}

		for {
			select {
			case count := <-counts:
				fmt.Fprintf(bw, "event: pending_bonuses\ndata: {\"count\":%d}\n\n", count)
				if err := bw.Flush(); err != nil {
					// client disconnected
					return
				}
			case <-sub.Done():
				zap.L().Debug("pending bonus stream closed", zap.String("user_id", userID))
				return
			case <-serverDone:
				return
			}
		}
	})

	return nil
}
