package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/metrics"
	"github.com/fleetcare/fleet-backend/internal/ratelimit"
	"github.com/fleetcare/fleet-backend/internal/session"
)

// SendThrottle limits message sends per authenticated sender. It must run
// after JWTProtected.
func SendThrottle(limiter *ratelimit.KeyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := session.GetUserID(c)
		if err != nil {
			return c.Next()
		}
		if !limiter.Allow(userID.String(), time.Now()) {
			metrics.SendThrottled.Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Too many messages, slow down",
				Code:    "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
