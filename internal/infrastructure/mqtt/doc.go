// Package mqtt wraps the paho MQTT client for the arena device namespace.
//
// It provides connection management with automatic reconnection and
// re-subscription, Last Will and Testament on arena/system/status, QoS and
// payload validation, and topic builders for the device channels
// (status, heartbeat, hit, control, led, config).
package mqtt
