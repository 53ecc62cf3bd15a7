package pipeline

import "github.com/banshee-data/lanespray/internal/monitoring"

var log = monitoring.Component("pipeline")

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func opsf(format string, args ...interface{}) {
	log.Opsf(format, args...)
}

// diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func diagf(format string, args ...interface{}) {
	log.Diagf(format, args...)
}
