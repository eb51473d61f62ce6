// Package influxdb records command and fleet telemetry in InfluxDB.
//
// Telemetry is optional and strictly fire-and-forget: writes are batched
// and asynchronous, and a missing or unhealthy InfluxDB never affects
// command dispatch. Two measurements are written: command_metrics (one
// point per dispatched command with its round-trip latency) and
// fleet_metrics (periodic locker counts).
package influxdb
