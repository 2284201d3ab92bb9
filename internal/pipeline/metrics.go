package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/fusion"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	passTotal        *prometheus.CounterVec
	passDuration     *prometheus.HistogramVec
	fusionTokens     *prometheus.CounterVec
	structuringTotal *prometheus.CounterVec
	resultsTotal     *prometheus.CounterVec
	confidence       prometheus.Histogram
	processDuration  prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		passTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardex_pass_total",
				Help: "OCR language passes by outcome",
			},
			[]string{"language", "outcome"}, // outcome: ok, failed, timeout
		),
		passDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardex_pass_duration_seconds",
				Help:    "OCR language pass duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"language"},
		),
		fusionTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardex_fusion_tokens_total",
				Help: "Tokens through the fusion stage",
			},
			[]string{"stage"}, // stage: input, survivor, discarded
		),
		structuringTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardex_structuring_total",
				Help: "Structuring calls by path and AI outcome",
			},
			[]string{"path", "outcome"},
		),
		resultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardex_results_total",
				Help: "Processed cards by status and reason",
			},
			[]string{"status", "reason"},
		),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardex_overall_confidence",
			Help:    "Overall confidence of processed cards",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		processDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardex_process_duration_seconds",
			Help:    "End-to-end card processing duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 60},
		}),
	}
}

func (m *Metrics) observePass(r PassReport) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case r.TimedOut:
		outcome = "timeout"
	case r.Error != "":
		outcome = "failed"
	}
	m.passTotal.WithLabelValues(r.Language, outcome).Inc()
	m.passDuration.WithLabelValues(r.Language).Observe(float64(r.DurationMs) / 1000)
}

func (m *Metrics) observeFusion(s fusion.Stats) {
	if m == nil {
		return
	}
	m.fusionTokens.WithLabelValues("input").Add(float64(s.Input))
	m.fusionTokens.WithLabelValues("survivor").Add(float64(s.Survivors))
	m.fusionTokens.WithLabelValues("discarded").Add(float64(s.Discarded))
}

func (m *Metrics) observeStructuring(path extract.Path, outcome extract.AIOutcome) {
	if m == nil {
		return
	}
	m.structuringTotal.WithLabelValues(string(path), outcome.String()).Inc()
}

func (m *Metrics) observeResult(res *Result, d time.Duration) {
	if m == nil {
		return
	}
	m.resultsTotal.WithLabelValues(string(res.Status), res.Reason).Inc()
	m.confidence.Observe(res.OverallConfidence)
	m.processDuration.Observe(d.Seconds())
}
