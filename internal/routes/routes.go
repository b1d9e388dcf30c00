package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/fleetcare/fleet-backend/internal/config"
	"github.com/fleetcare/fleet-backend/internal/handlers"
	"github.com/fleetcare/fleet-backend/internal/metrics"
	"github.com/fleetcare/fleet-backend/internal/middleware"
	"github.com/fleetcare/fleet-backend/internal/ratelimit"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Health     *handlers.HealthHandler
	Moderation *handlers.ModerationHandler
	Contacts   *handlers.ContactHandler
	Messaging  *handlers.MessagingHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers, sendLimiter *ratelimit.KeyedLimiter) {
	RegisterMetrics(app, middleware.AdminRequired(db, cfg))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Auth-specific rate limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	jwt := middleware.JWTProtected(cfg)

	// Protected routes get the JWT middleware per route so public routes stay open
	api.Post("/auth/logout", jwt, h.Auth.Logout)
	api.Delete("/auth/account", jwt, h.Auth.DeactivateAccount)

	api.Post("/contacts", jwt, h.Contacts.Add)
	api.Get("/contacts", jwt, h.Contacts.List)
	api.Delete("/contacts/:id", jwt, h.Contacts.Remove)

	RegisterMessaging(api, jwt, h.Messaging, sendLimiter)

	api.Post("/reports", jwt, h.Moderation.CreateReport)

	admin := api.Group("/admin", jwt, middleware.AdminRequired(db, cfg))
	admin.Get("/moderation/reports", h.Moderation.ListReports)
	admin.Put("/moderation/reports/:id", h.Moderation.ActionReport)
}

// RegisterMetrics exposes the Prometheus registry behind guard. Scrapers
// authenticate with the X-Admin-Token header.
func RegisterMetrics(r fiber.Router, guard fiber.Handler) {
	r.Get("/metrics", guard, metrics.Handler())
}

// RegisterMessaging mounts the chat endpoints on r behind auth.
func RegisterMessaging(r fiber.Router, auth fiber.Handler, h *handlers.MessagingHandler, sendLimiter *ratelimit.KeyedLimiter) {
	r.Post("/messages/accept", auth, h.Accept)
	r.Post("/messages/block", auth, h.Block)
	r.Post("/messages", auth, middleware.SendThrottle(sendLimiter), h.Send)
	r.Get("/messages/:userId", auth, h.History)
	r.Get("/conversations", auth, h.ListConversations)
}
