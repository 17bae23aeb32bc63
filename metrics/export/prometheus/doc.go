// Package prometheus renders goAssist client metrics in Prometheus text
// exposition format.
//
// Counter names are prefixed goassist_*_total; the single histogram is
// goassist_gateway_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate client state.
package prometheus
