package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExposureDecision is what the planner decided for this process.
type ExposureDecision struct {
	Policy     string
	Discovery  string
	Address    string
	Topology   string
	Interfaces []string
	Encrypted  []string
	MutualTLS  bool
}

// RecordExposureDecision annotates span with the exposure decision.
func RecordExposureDecision(span trace.Span, decision ExposureDecision) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("exposure.policy", decision.Policy),
		attribute.String("exposure.discovery", decision.Discovery),
		attribute.String("exposure.topology", decision.Topology),
		attribute.StringSlice("exposure.interfaces", decision.Interfaces),
		attribute.Bool("exposure.mutual_tls", decision.MutualTLS),
	)

	if decision.Address != "" {
		span.SetAttributes(attribute.String("exposure.address", decision.Address))
	}
	if len(decision.Encrypted) > 0 {
		span.SetAttributes(attribute.StringSlice("exposure.encrypted_interfaces", decision.Encrypted))
	}

	// Every listener is plaintext.
	if len(decision.Encrypted) == 0 {
		span.AddEvent("exposure.unencrypted")
	}
}
