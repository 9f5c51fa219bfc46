// Package telemetry wires OpenTelemetry tracing and startup metrics for the
// exposure service.
//
// SetupProvider installs the process-wide tracer provider with an OTLP/gRPC
// exporter. RecordExposureDecision and RecordStartup annotate spans and
// meters with the chosen encryption policy and topology so operators can
// see how a process was exposed.
package telemetry
