package session

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "calculator",
		Name:      "sessions_active",
		Help:      "Calculator sessions currently held in memory.",
	})
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "calculator",
		Name:      "sessions_created_total",
		Help:      "Calculator sessions created.",
	})
	sessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "calculator",
		Name:      "sessions_expired_total",
		Help:      "Calculator sessions evicted after their TTL.",
	})
	busyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "calculator",
		Name:      "session_busy_rejections_total",
		Help:      "Events rejected because the session was handling another one.",
	})
	keyPresses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calculator",
		Name:      "key_presses_total",
		Help:      "Keys pressed on calculator sessions, by outcome.",
	}, []string{"outcome"})
)

// errorCounter is the OTel counter for failed session requests.
var errorCounter metric.Int64Counter

// InitMetrics registers the OTel instruments of the session API.
// Call this once at startup (after observability.InitMetrics).
func InitMetrics() error {
	var err error
	errorCounter, err = otel.Meter("session").Int64Counter("calculator.session.errors.total",
		metric.WithDescription("Total number of failed session requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("creating session error counter: %w", err)
	}
	return nil
}
