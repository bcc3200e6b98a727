package services

import (
	"errors"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_events_total",
			Help: "Authentication operations by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	emailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_emails_sent_total",
			Help: "Outbound emails by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, models.ErrTooManyRequests):
		return "throttled"
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrInvalidToken):
		return "unauthorized"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func recordAuthEvent(event string, err error) {
	authEventsTotal.WithLabelValues(event, outcomeLabel(err)).Inc()
}

func recordEmail(kind string, err error) {
	emailsSentTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
}
