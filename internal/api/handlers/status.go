package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
)

// LivenessView 워커 생존 응답
type LivenessView struct {
	Status              string              `json:"status"` // alive | stalled | never_started
	HeartbeatAgeSeconds *float64            `json:"heartbeat_age_seconds,omitempty"`
	StaleAfterSeconds   float64             `json:"stale_after_seconds"`
	Liveness            *contracts.Liveness `json:"liveness"`
	CheckedAt           time.Time           `json:"checked_at"`
}

// NewLivenessView builds the liveness response for one point in time
func NewLivenessView(l *contracts.Liveness, now time.Time, staleAfter time.Duration) LivenessView {
	v := LivenessView{
		Status:            l.Status(now, staleAfter),
		StaleAfterSeconds: staleAfter.Seconds(),
		Liveness:          l,
		CheckedAt:         now,
	}
	if age, ok := l.HeartbeatAge(now); ok {
		secs := age.Seconds()
		v.HeartbeatAgeSeconds = &secs
	}
	return v
}

// StatusHandler health/liveness 엔드포인트
type StatusHandler struct {
	store      contracts.Store
	staleAfter time.Duration
	metrics    *metrics.Recorder
	logger     *logger.Logger
	now        func() time.Time
}

// NewStatusHandler creates a status handler
func NewStatusHandler(store contracts.Store, staleAfter time.Duration, rec *metrics.Recorder, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		store:      store,
		staleAfter: staleAfter,
		metrics:    rec,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Health reports API and store reachability
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Store ping failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "degraded",
			"service": "signalcast-api",
			"store":   "unreachable",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "signalcast-api",
		"store":   "ok",
	})
}

// GetLiveness returns the worker liveness record; 503 when the worker is not alive
// GET /api/liveness
func (h *StatusHandler) GetLiveness(w http.ResponseWriter, r *http.Request) {
	view, err := h.Liveness(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get liveness")
		respondError(w, http.StatusInternalServerError, "failed to read liveness")
		return
	}

	status := http.StatusOK
	if view.Status != contracts.WorkerAlive {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, view)
}

// Liveness reads the record and refreshes the heartbeat age gauge
func (h *StatusHandler) Liveness(ctx context.Context) (LivenessView, error) {
	l, err := h.store.Liveness().Get(ctx)
	if err != nil {
		return LivenessView{}, err
	}
	view := NewLivenessView(l, h.now(), h.staleAfter)
	if view.HeartbeatAgeSeconds != nil {
		h.metrics.SetHeartbeatAge(*view.HeartbeatAgeSeconds)
	}
	return view, nil
}
