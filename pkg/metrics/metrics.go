package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 워커/평가 지표
// ⭐ SSOT: Prometheus 지표 이름은 여기서만 정의
type Recorder struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	heartbeatAge    prometheus.Gauge
	forecastsMade   *prometheus.CounterVec
	forecastsClosed *prometheus.CounterVec
	eventsPublished prometheus.Counter
}

// New registers every collector on a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcast_cycles_total",
			Help: "Completed worker cycles",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcast_cycle_duration_seconds",
			Help:    "Wall time of one worker cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalcast_stage_duration_seconds",
			Help:    "Wall time of one cycle stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcast_stage_failures_total",
			Help: "Stage failures by kind (error, timeout, panic)",
		}, []string{"stage", "kind"}),
		heartbeatAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcast_heartbeat_age_seconds",
			Help: "Seconds since the last worker heartbeat, as seen by the API",
		}),
		forecastsMade: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcast_forecasts_created_total",
			Help: "Forecasts created",
		}, []string{"asset"}),
		forecastsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcast_forecasts_resolved_total",
			Help: "Forecasts resolved by outcome (hit, miss, expired)",
		}, []string{"asset", "outcome"}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcast_events_published_total",
			Help: "Outbox events published downstream",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.cycles, r.cycleDuration, r.stageDuration, r.stageFailures,
		r.heartbeatAge, r.forecastsMade, r.forecastsClosed, r.eventsPublished,
	)
	return r
}

// Handler exposes the registry for /metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests)
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCycle records one finished cycle
func (r *Recorder) ObserveCycle(seconds float64) {
	if r == nil {
		return
	}
	r.cycles.Inc()
	r.cycleDuration.Observe(seconds)
}

// ObserveStage records stage wall time
func (r *Recorder) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// StageFailed counts a stage failure
func (r *Recorder) StageFailed(stage, kind string) {
	if r == nil {
		return
	}
	r.stageFailures.WithLabelValues(stage, kind).Inc()
}

// SetHeartbeatAge updates the heartbeat age gauge
func (r *Recorder) SetHeartbeatAge(seconds float64) {
	if r == nil {
		return
	}
	r.heartbeatAge.Set(seconds)
}

// ForecastCreated counts a new forecast
func (r *Recorder) ForecastCreated(asset string) {
	if r == nil {
		return
	}
	r.forecastsMade.WithLabelValues(asset).Inc()
}

// ForecastResolved counts an evaluated or expired forecast
func (r *Recorder) ForecastResolved(asset, outcome string) {
	if r == nil {
		return
	}
	r.forecastsClosed.WithLabelValues(asset, outcome).Inc()
}

// EventsPublished counts published outbox events
func (r *Recorder) EventsPublished(n int) {
	if r == nil {
		return
	}
	r.eventsPublished.Add(float64(n))
}
