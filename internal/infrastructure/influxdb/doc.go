// Package influxdb records approval-workflow telemetry in InfluxDB.
//
// Two measurements are written: approval_decision (one point per
// supervisor verdict, tagged by status and decision source) and
// approval_resolution (one point per coordinator resolution, tagged by
// status and whether the verdict came from the supervisor or a timeout).
// Together they answer the operational questions that matter for a
// fail-open system: how often the safety fallback fires, and how long
// decisions take relative to the request timeout.
//
// The integration is optional; when disabled the rest of the system runs
// unchanged.
package influxdb
