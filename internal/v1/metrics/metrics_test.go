package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	// These are promauto collectors bound to the default registry; the main
	// thing to verify is that the label sets are wired correctly and that
	// incrementing does not panic.

	t.Run("ActiveSessions", func(t *testing.T) {
		IncSession()
		IncSession()
		DecSession()
		if got := testutil.ToFloat64(ActiveSessions); got < 1 {
			t.Errorf("expected ActiveSessions to be at least 1, got %v", got)
		}
	})

	t.Run("RequestsHandled", func(t *testing.T) {
		RequestsHandled.WithLabelValues("list_room_request", "ok").Inc()
		val := testutil.ToFloat64(RequestsHandled.WithLabelValues("list_room_request", "ok"))
		if val < 1 {
			t.Errorf("expected RequestsHandled to be at least 1, got %v", val)
		}
	})

	t.Run("ProbeAttempts", func(t *testing.T) {
		ProbeAttempts.WithLabelValues("tcp", "succeeded").Inc()
		val := testutil.ToFloat64(ProbeAttempts.WithLabelValues("tcp", "succeeded"))
		if val < 1 {
			t.Errorf("expected ProbeAttempts to be at least 1, got %v", val)
		}
	})

	t.Run("RequestDuration", func(t *testing.T) {
		// Verifying histogram buckets is overkill; no-panic on observe is
		// the registration check that matters.
		RequestDuration.WithLabelValues("join_room_request").Observe(0.01)
	})
}
