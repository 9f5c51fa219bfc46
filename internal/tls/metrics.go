package tls

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	tlsMetricsInst *TLSMetricsCollector
)

// TLSMetricsCollector handles TLS-specific metrics collection
type TLSMetricsCollector struct {
	resolutions        metric.Int64Counter
	providerErrors     metric.Int64Counter
	clientErrors       metric.Int64Counter
	certificateChanges metric.Int64Counter

	logger *slog.Logger
}

// GetTLSMetricsCollector returns the singleton TLS metrics collector
func GetTLSMetricsCollector(logger *slog.Logger) (*TLSMetricsCollector, error) {
	metricsOnce.Do(func() {
		tlsMetricsInst, metricsInitErr = NewTLSMetricsCollector(otel.GetMeterProvider(), logger)
	})
	return tlsMetricsInst, metricsInitErr
}

// NewTLSMetricsCollector creates a collector on an explicit meter provider.
func NewTLSMetricsCollector(provider metric.MeterProvider, logger *slog.Logger) (*TLSMetricsCollector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	meter := provider.Meter("polis.expose.tls")

	collector := &TLSMetricsCollector{
		logger: logger,
	}

	var err error

	collector.resolutions, err = meter.Int64Counter(
		"tls_config_resolutions_total",
		metric.WithDescription("Number of TLS configuration resolutions that consulted their source"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	collector.providerErrors, err = meter.Int64Counter(
		"tls_provider_errors_total",
		metric.WithDescription("Total number of certificate provider failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	collector.clientErrors, err = meter.Int64Counter(
		"tls_client_errors_total",
		metric.WithDescription("Total number of TLS errors caused by remote clients"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	collector.certificateChanges, err = meter.Int64Counter(
		"tls_certificate_changes_total",
		metric.WithDescription("Certificate file changes observed on disk"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	return collector, nil
}

// RecordResolution records a resolution by material source (override or provider)
func (c *TLSMetricsCollector) RecordResolution(ctx context.Context, source string) {
	if c == nil {
		return
	}
	c.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordProviderError records a failed certificate provider call
func (c *TLSMetricsCollector) RecordProviderError(ctx context.Context, operation string) {
	if c == nil {
		return
	}
	c.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	c.logger.Debug("TLS provider error recorded", "operation", operation)
}

// RecordClientError records a client-side TLS failure on a live listener
func (c *TLSMetricsCollector) RecordClientError(ctx context.Context, iface string) {
	if c == nil {
		return
	}
	c.clientErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("interface", iface)))
}

// RecordCertificateChange records a certificate file change
func (c *TLSMetricsCollector) RecordCertificateChange(ctx context.Context, file string) {
	if c == nil {
		return
	}
	c.certificateChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("file", file)))
}
