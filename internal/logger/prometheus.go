package logger

import (
	"github.com/jobtrack/autopilot/internal/metrics"
	log "github.com/sirupsen/logrus"
)

const errorTypeUnknown = "unknown"

// prometheusHook counts error-level log entries by their error_type field
// (db, board, tg_api), feeding the errors metric without any call-site
// instrumentation.
type prometheusHook struct{}

func (h *prometheusHook) Fire(entry *log.Entry) error {

	// loki delivery failures carry source=loki; counting them here would
	// report log-transport noise as orchestration errors
	if entry.Data["source"] == "loki" {
		return nil
	}

	errorType, ok := entry.Data[ErrorTypeField].(string)
	if !ok {
		errorType = errorTypeUnknown
	}

	metrics.ErrorsCounter.WithLabelValues(errorType).Inc()
	return nil
}

func (h *prometheusHook) Levels() []log.Level {
	return []log.Level{
		log.ErrorLevel,
		log.FatalLevel,
		log.PanicLevel,
	}
}

func addPrometheusHook() {
	log.AddHook(&prometheusHook{})
}
