package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Startup outcomes.
const (
	OutcomeStarted    = "started"
	OutcomePlanFailed = "plan_failed"
	OutcomeBindFailed = "bind_failed"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	startupCounter       metric.Int64Counter
	interfaceCounter     metric.Int64Counter
	startupLatencyHisto  metric.Float64Histogram
	registrationsCounter metric.Int64Counter
)

// StartupMetrics captures one startup attempt.
type StartupMetrics struct {
	Policy     string
	Discovery  string
	Topology   string
	Outcome    string
	Duration   time.Duration
	Interfaces []InterfaceMetrics
}

// InterfaceMetrics describes one started interface.
type InterfaceMetrics struct {
	Name      string
	Encrypted bool
}

// RecordStartup emits counters and a latency histogram for a startup attempt.
func RecordStartup(ctx context.Context, metrics StartupMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("exposure.policy", metrics.Policy),
		attribute.String("exposure.discovery", metrics.Discovery),
		attribute.String("exposure.topology", metrics.Topology),
		attribute.String("startup.outcome", metrics.Outcome),
	}

	startupCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		startupLatencyHisto.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if metrics.Outcome != OutcomeStarted {
		return
	}
	for _, iface := range metrics.Interfaces {
		interfaceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("exposure.interface", iface.Name),
			attribute.Bool("exposure.encrypted", iface.Encrypted),
		))
	}
}

// RecordRegistration counts a registry (de)registration by result.
func RecordRegistration(ctx context.Context, operation string, err error) {
	if ensureMetrics() != nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	registrationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("registry.operation", operation),
		attribute.String("registry.result", result),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("polis.expose.startup")

		startupCounter, metricsInitErr = meter.Int64Counter(
			"expose.startup.attempts_total",
			metric.WithDescription("Startup attempts partitioned by policy, topology and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		interfaceCounter, metricsInitErr = meter.Int64Counter(
			"expose.interfaces.started_total",
			metric.WithDescription("Interfaces started partitioned by name and encryption"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		registrationsCounter, metricsInitErr = meter.Int64Counter(
			"expose.registry.operations_total",
			metric.WithDescription("Service registry registrations and deregistrations"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		startupLatencyHisto, metricsInitErr = meter.Float64Histogram(
			"expose.startup.duration_ms",
			metric.WithDescription("Time from configuration load to bound listeners"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
