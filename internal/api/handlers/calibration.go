package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
)

// SummaryReader 최신 요약 스냅샷 조회 (calibration.Engine, 캐시 경유)
type SummaryReader interface {
	LatestSummary(ctx context.Context) ([]contracts.SummarySnapshot, error)
}

// CalibrationHandler 요약/캘리브레이션 조회
type CalibrationHandler struct {
	calibration contracts.CalibrationRepository
	summaries   SummaryReader
	logger      *logger.Logger
}

// NewCalibrationHandler creates a calibration handler
func NewCalibrationHandler(calibration contracts.CalibrationRepository, summaries SummaryReader, log *logger.Logger) *CalibrationHandler {
	return &CalibrationHandler{
		calibration: calibration,
		summaries:   summaries,
		logger:      log,
	}
}

// GetSummary returns the latest evaluation summary snapshot
// GET /api/summary
func (h *CalibrationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.summaries.LatestSummary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get summary")
		respondError(w, http.StatusInternalServerError, "failed to get summary")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "no summary snapshot yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_id": rows[0].SnapshotID,
		"computed_at": rows[0].ComputedAt,
		"window_days": rows[0].WindowDays,
		"rows":        rows,
	})
}

// GetCalibration lists calibration buckets, least accurate first
// GET /api/calibration
func (h *CalibrationHandler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.calibration.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list calibration buckets")
		respondError(w, http.StatusInternalServerError, "failed to list calibration buckets")
		return
	}
	if buckets == nil {
		buckets = []contracts.CalibrationBucket{}
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].RollingAccuracy < buckets[j].RollingAccuracy
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"buckets": buckets,
		"count":   len(buckets),
	})
}
