// Package influxdb records hit telemetry and device presence transitions.
//
// Writes go through the non-blocking batched WriteAPI; ingest paths never
// wait on the telemetry store. The package is optional and disabled by
// default in configuration.
package influxdb
