package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	ErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_errors_total",
			Help: "Total number of occurred errors.",
		},
		[]string{"type"},
	)
	AttemptsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_attempts_total",
			Help: "Total number of orchestration attempts by outcome.",
		},
		[]string{"outcome"},
	)
	CapExhaustedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_cap_exhausted_total",
			Help: "Total number of cycles skipped because the daily cap was exhausted.",
		},
	)
	PausedRulesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autopilot_paused_rules",
			Help: "Number of rules currently paused awaiting human action.",
		},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autopilot_cycle_duration_seconds",
			Help:    "Duration of each orchestration cycle in seconds.",
			Buckets: []float64{1, 5, 15, 60, 180, 600},
		},
	)
	CycleStepDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "autopilot_cycle_step_duration_seconds",
			Help:       "Duration of each step in an orchestration cycle.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step"},
	)
)

func StartMetricsServer() {

	prometheus.MustRegister(ErrorsCounter)
	prometheus.MustRegister(AttemptsCounter)
	prometheus.MustRegister(CapExhaustedCounter)
	prometheus.MustRegister(PausedRulesGauge)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(CycleStepDuration)

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Fatal(http.ListenAndServe(":8080", nil))
	}()
}
