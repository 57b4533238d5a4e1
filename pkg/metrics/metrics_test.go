package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveCycle(1.5)
	r.StageFailed("ingest", "timeout")
	r.StageFailed("ingest", "timeout")
	r.ForecastCreated("Gold")
	r.ForecastResolved("Gold", "hit")
	r.EventsPublished(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stageFailures.WithLabelValues("ingest", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecastsMade.WithLabelValues("Gold")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.eventsPublished))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveCycle(1)
		r.ObserveStage("prices", 1)
		r.StageFailed("prices", "error")
		r.SetHeartbeatAge(3)
		r.ForecastCreated("Oil")
		r.ForecastResolved("Oil", "expired")
		r.EventsPublished(1)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SetHeartbeatAge(12)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "signalcast_heartbeat_age_seconds 12"))
}
