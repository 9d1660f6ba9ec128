// Package telemetry wires OpenTelemetry tracing and metrics for the policy
// exporter.
//
// Tracing and metric export are off unless an OTLP endpoint is configured.
// Export counters are recorded against the global meter provider, which is a
// no-op until SetupProvider installs one.
package telemetry
