package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waflite/waflite/internal/logging"
)

// Sources label where an evaluation came from.
const (
	SourceAPI   = "api"
	SourceGuard = "guard"
	SourceScan  = "scan"
)

type Metrics struct {
	scansTotal        *prometheus.CounterVec
	blocksTotal       *prometheus.CounterVec
	ruleMatchesTotal  *prometheus.CounterVec
	configErrorsTotal *prometheus.CounterVec
	score             prometheus.Histogram
	requestDuration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "waflite_scans_total", Help: "Total evaluated requests"},
			[]string{"source", "decision"},
		),
		blocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "waflite_blocks_total", Help: "Total blocked requests"},
			[]string{"source"},
		),
		ruleMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "waflite_rule_matches_total", Help: "Total rule matches"},
			[]string{"rule_id", "field"},
		),
		configErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "waflite_config_errors_total", Help: "Evaluations aborted by an invalid rule set"},
			[]string{"source"},
		),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waflite_score",
			Help:    "Request score after ignore-list adjustment",
			Buckets: []float64{0, 1, 3, 5, 7, 10, 15, 20, 30},
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waflite_request_duration_seconds",
				Help:    "Evaluation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.scansTotal,
		m.blocksTotal,
		m.ruleMatchesTotal,
		m.configErrorsTotal,
		m.score,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observe records one evaluated request.
func (m *Metrics) Observe(decision logging.Decision, elapsed time.Duration) {
	if m == nil {
		return
	}

	source := decision.Source
	m.scansTotal.WithLabelValues(source, decision.Action).Inc()
	m.requestDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.score.Observe(float64(decision.Score))

	if decision.Action == "block" {
		m.blocksTotal.WithLabelValues(source).Inc()
	}

	for _, match := range decision.MatchedRules {
		m.ruleMatchesTotal.WithLabelValues(match.ID, match.Field).Inc()
	}
}

// ConfigError counts an evaluation that failed on the rule set.
func (m *Metrics) ConfigError(source string) {
	if m == nil {
		return
	}
	m.configErrorsTotal.WithLabelValues(source).Inc()
}
