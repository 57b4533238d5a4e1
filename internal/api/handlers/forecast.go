package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
)

// ForecastHandler handles forecast API endpoints
// ⭐ SSOT: Forecast API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	forecasts contracts.ForecastRepository
	logger    *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(forecasts contracts.ForecastRepository, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecasts: forecasts,
		logger:    log,
	}
}

// ListForecasts returns recent forecasts
// GET /api/forecasts?status=active&asset=Gold&limit=20
func (h *ForecastHandler) ListForecasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := contracts.ForecastFilter{
		Status: contracts.ForecastStatus(q.Get("status")),
		Asset:  q.Get("asset"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	limit, ok := intParam(r, "limit", 50, 500)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	filter.Limit = limit

	forecasts, err := h.forecasts.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list forecasts")
		respondError(w, http.StatusInternalServerError, "failed to list forecasts")
		return
	}
	if forecasts == nil {
		forecasts = []contracts.Forecast{}
	}

	counts, err := h.forecasts.CountByStatus(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count forecasts")
		respondError(w, http.StatusInternalServerError, "failed to count forecasts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"forecasts": forecasts,
		"count":     len(forecasts),
		"by_status": counts,
	})
}

// GetForecast returns one forecast
// GET /api/forecasts/{id}
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid forecast id")
		return
	}

	f, err := h.forecasts.Get(r.Context(), id)
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "forecast not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to get forecast")
		respondError(w, http.StatusInternalServerError, "failed to get forecast")
		return
	}

	respondJSON(w, http.StatusOK, f)
}
