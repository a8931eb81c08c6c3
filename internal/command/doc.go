// Package command publishes control, LED and configuration messages to
// target devices over their per-device MQTT command topics.
package command
