// Package metrics exposes the Prometheus collectors of the messaging core.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet"

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Messages persisted by the dispatch service.",
	})

	SendDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "send_denied_total",
		Help:      "Sends refused by access resolution, by caller-visible code.",
	}, []string{"code"})

	SendThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "send_throttled_total",
		Help:      "Sends rejected by the per-sender rate limiter.",
	})

	RelationChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "relation_changes_total",
		Help:      "Accept and block operations by outcome (applied, noop, rejected).",
	}, []string{"operation", "outcome"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "notification_failures_total",
		Help:      "Delivery notifications that failed after the message was stored.",
	})
)

// Handler serves the default registry on a Fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
