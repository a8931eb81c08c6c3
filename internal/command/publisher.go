package command

import (
	"encoding/json"
	"fmt"

	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
)

// commandQoS is at-least-once. Devices must tolerate duplicate commands.
const commandQoS = 1

// Logger defines the logging interface used by the Publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the slice of the MQTT client the publisher needs.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ControlCommand is the payload published to a device's control channel.
type ControlCommand struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// LEDCommand sets a target's LED ring.
type LEDCommand struct {
	Color string `json:"color"`
	Mode  string `json:"mode,omitempty"`
}

// Publisher sends commands to target devices over their per-device
// command topics.
//
// Sends are fire and forget: there is no acknowledgement channel, and a
// disconnected transport fails the single call immediately. Queueing and
// retry are caller concerns.
type Publisher struct {
	transport Transport
	logger    Logger
}

// NewPublisher creates a command publisher over the given transport.
func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport, logger: noopLogger{}}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// SendControl publishes a control command to a device.
func (p *Publisher) SendControl(deviceID, cmd string, params map[string]any) error {
	if deviceID == "" || cmd == "" {
		return fmt.Errorf("command: device id and command are required")
	}
	return p.publish(mqtt.Topics{}.DeviceControl(deviceID), deviceID, ControlCommand{Command: cmd, Params: params})
}

// SetLED publishes an LED command to a device.
func (p *Publisher) SetLED(deviceID, color, mode string) error {
	if deviceID == "" || color == "" {
		return fmt.Errorf("command: device id and color are required")
	}
	return p.publish(mqtt.Topics{}.DeviceLED(deviceID), deviceID, LEDCommand{Color: color, Mode: mode})
}

// UpdateConfig publishes a configuration document to a device. The core
// does not interpret the document; its schema belongs to the firmware.
func (p *Publisher) UpdateConfig(deviceID string, cfg map[string]any) error {
	if deviceID == "" {
		return fmt.Errorf("command: device id is required")
	}
	if len(cfg) == 0 {
		return fmt.Errorf("command: empty config")
	}
	return p.publish(mqtt.Topics{}.DeviceConfig(deviceID), deviceID, cfg)
}

func (p *Publisher) publish(topic, deviceID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	if err := p.transport.Publish(topic, payload, commandQoS, false); err != nil {
		p.logger.Warn("command publish failed", "device_id", deviceID, "topic", topic, "error", err)
		return err
	}

	p.logger.Debug("command published", "device_id", deviceID, "topic", topic)
	return nil
}
