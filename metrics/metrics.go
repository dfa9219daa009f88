package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pagetrace/pagetrace/types"
)

const (
	MetricsNamespace = "pagetrace"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	executionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_results",
		Help:      "Result of test executions",
	}, []string{
		"execution_id",
		"result",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of scenarios by result",
	}, []string{
		"execution_id",
		"feature",
		"result",
	})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "steps_total",
		Help:      "Count of steps by result",
	}, []string{
		"execution_id",
		"result",
	})

	executionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_duration_seconds",
		Help:      "Duration of a test execution",
	}, []string{
		"execution_id",
	})

	reporterErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reporter_errors_total",
		Help:      "Count of isolated reporter backend failures",
	}, []string{
		"reporter",
		"operation",
	})

	collectorEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "collector_entries",
		Help:      "Number of buffered telemetry entries per collector",
	}, []string{
		"collector",
		"execution_id",
	})

	executionScenarios = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_scenarios",
		Help:      "Scenario counts for a test execution",
	}, []string{
		"execution_id",
		"result",
	})

	finalizeFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "finalize_fallback_total",
		Help:      "Count of direct finish-launch fallback requests by outcome",
	}, []string{
		"outcome",
	})
)

// RecordError increments the error counter for a named error condition.
func RecordError(name string) {
	errorsTotal.WithLabelValues(name).Inc()
}

// RecordExecution records the outcome of a completed execution.
func RecordExecution(executionID string, successful bool, stats types.ExecutionStats, duration time.Duration) {
	result := "pass"
	if !successful {
		result = "fail"
	}
	executionResults.WithLabelValues(executionID, result).Set(1)
	executionDuration.WithLabelValues(executionID).Set(duration.Seconds())
	executionScenarios.WithLabelValues(executionID, "total").Set(float64(stats.Total))
	executionScenarios.WithLabelValues(executionID, "passed").Set(float64(stats.Passed))
	executionScenarios.WithLabelValues(executionID, "failed").Set(float64(stats.Failed))
}

// RecordScenario records the outcome of a completed scenario.
func RecordScenario(executionID, feature string, status types.Status) {
	scenariosTotal.WithLabelValues(executionID, feature, string(status)).Inc()
}

// RecordStep records the outcome of a completed step.
func RecordStep(executionID string, status types.Status) {
	stepsTotal.WithLabelValues(executionID, string(status)).Inc()
}

// RecordReporterError counts a reporter backend failure that was isolated by
// the coordinator.
func RecordReporterError(reporter, operation string) {
	reporterErrorsTotal.WithLabelValues(reporter, operation).Inc()
}

// RecordCollectorEntries tracks the size of a collector buffer.
func RecordCollectorEntries(collector, executionID string, entries int) {
	collectorEntries.WithLabelValues(collector, executionID).Set(float64(entries))
}

// RecordFinalizeFallback counts a direct finish-launch fallback request.
func RecordFinalizeFallback(outcome string) {
	finalizeFallbackTotal.WithLabelValues(outcome).Inc()
}
