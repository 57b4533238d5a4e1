package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/api/handlers"
	"github.com/wonny/signalcast/internal/calibration"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store/sqlite"
	"github.com/wonny/signalcast/internal/store/storetest"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
)

func newTestRouter(t *testing.T) (http.Handler, *sqlite.Store) {
	t.Helper()
	s := storetest.NewSQLite(t)
	log := logger.Nop()
	rec := metrics.New()

	status := handlers.NewStatusHandler(s, 2*time.Minute, rec, log)
	router := NewRouter(Handlers{
		Status:      status,
		Forecast:    handlers.NewForecastHandler(s.Forecasts(), log),
		Calibration: handlers.NewCalibrationHandler(s.Calibration(), calibration.NewEngine(s, nil, calibration.DefaultConfig(), log.Zerolog()), log),
		Stream:      handlers.NewStreamHandler(status, 20*time.Millisecond, log),
		Metrics:     rec.Handler(),
	}, log)
	return router, s
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func seedForecast(t *testing.T, s *sqlite.Store) *contracts.Forecast {
	t.Helper()
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	sig := &contracts.Signal{
		Source: "feed", ExternalID: "x", Title: "t", FetchedAt: at,
		Category: "inflation", Sentiment: contracts.SentimentPositive,
		ImpactLevel: contracts.ImpactMedium, Confidence: 60, AffectedAssets: []string{"Gold"},
	}
	_, err := s.Signals().Insert(ctx, sig)
	require.NoError(t, err)

	f := &contracts.Forecast{
		SignalID: &sig.ID, Asset: "Gold", Direction: contracts.DirectionUp, Confidence: 60,
		HorizonMinutes: 60, HorizonKey: "60m", Category: "inflation", Sentiment: contracts.SentimentPositive,
		CreatedAt: at, DueAt: at.Add(time.Hour), PriceAtCreation: 2000, Status: contracts.StatusActive,
	}
	created, err := s.Forecasts().Insert(ctx, f)
	require.NoError(t, err)
	require.True(t, created)
	return f
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rr, body := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLiveness(t *testing.T) {
	router, s := newTestRouter(t)

	rr, body := get(t, router, "/api/liveness")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, contracts.WorkerNeverStarted, body["status"])

	require.NoError(t, s.Liveness().Heartbeat(context.Background(), time.Now().UTC(), 77))
	rr, body = get(t, router, "/api/liveness")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contracts.WorkerAlive, body["status"])
	assert.NotNil(t, body["heartbeat_age_seconds"])

	require.NoError(t, s.Liveness().Heartbeat(context.Background(), time.Now().UTC().Add(-10*time.Minute), 77))
	rr, body = get(t, router, "/api/liveness")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, contracts.WorkerStalled, body["status"])
}

func TestForecasts(t *testing.T) {
	router, s := newTestRouter(t)
	f := seedForecast(t, s)

	tests := []struct {
		name  string
		path  string
		code  int
		count float64
	}{
		{"all", "/api/forecasts", http.StatusOK, 1},
		{"by status", "/api/forecasts?status=active", http.StatusOK, 1},
		{"other asset", "/api/forecasts?asset=Oil", http.StatusOK, 0},
		{"bad status", "/api/forecasts?status=done", http.StatusBadRequest, 0},
		{"bad limit", "/api/forecasts?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := get(t, router, tt.path)
			require.Equal(t, tt.code, rr.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.count, body["count"])
			}
		})
	}

	rr, body := get(t, router, "/api/forecasts/"+strconv.FormatInt(f.ID, 10))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Gold", body["asset"])

	rr, _ = get(t, router, "/api/forecasts/999999")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSummaryAndCalibration(t *testing.T) {
	router, s := newTestRouter(t)
	ctx := context.Background()

	rr, _ := get(t, router, "/api/summary")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.Summaries().Append(ctx, []contracts.SummarySnapshot{
		{SnapshotID: "snap-1", ComputedAt: now, WindowDays: 7, Asset: "Gold", HorizonKey: "24h", HorizonMinutes: 1440, NTotal: 4, NHit: 3, DirectionalAccuracy: 75},
		{SnapshotID: "snap-1", ComputedAt: now, WindowDays: 7, Asset: contracts.SummaryAll, HorizonKey: contracts.SummaryAll, NTotal: 4, NHit: 3, DirectionalAccuracy: 75},
	}))

	rr, body := get(t, router, "/api/summary")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "snap-1", body["snapshot_id"])
	assert.Len(t, body["rows"], 2)

	rr, body = get(t, router, "/api/calibration")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestMetricsAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr, _ := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "signalcast_events_published_total")

	rr, body := get(t, router, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", body["error"])
}

func TestLivenessStream(t *testing.T) {
	router, s := newTestRouter(t)
	require.NoError(t, s.Liveness().Heartbeat(context.Background(), time.Now().UTC(), 77))

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/liveness"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		var view handlers.LivenessView
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&view))
		assert.Equal(t, contracts.WorkerAlive, view.Status)
		assert.Equal(t, 77, view.Liveness.PID)
	}
}
