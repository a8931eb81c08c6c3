package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
)

// fakeTransport records publishes and can simulate a dead connection.
type fakeTransport struct {
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func TestSendControl_PublishesToControlTopic(t *testing.T) {
	transport := &fakeTransport{}
	pub := NewPublisher(transport)

	err := pub.SendControl("target-07", "activate", map[string]any{"duration_ms": 500})
	if err != nil {
		t.Fatalf("SendControl() error = %v", err)
	}

	if len(transport.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(transport.published))
	}
	msg := transport.published[0]
	if msg.topic != "arena/devices/target-07/control" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.qos != 1 || msg.retained {
		t.Errorf("qos = %d retained = %v, want qos 1 not retained", msg.qos, msg.retained)
	}

	var cmd ControlCommand
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if cmd.Command != "activate" || cmd.Params["duration_ms"] != float64(500) {
		t.Errorf("command = %+v", cmd)
	}
}

func TestSetLED_PublishesToLEDTopic(t *testing.T) {
	transport := &fakeTransport{}
	pub := NewPublisher(transport)

	if err := pub.SetLED("target-07", "red", "blink"); err != nil {
		t.Fatalf("SetLED() error = %v", err)
	}

	msg := transport.published[0]
	if msg.topic != "arena/devices/target-07/led" {
		t.Errorf("topic = %q", msg.topic)
	}
	var led LEDCommand
	if err := json.Unmarshal(msg.payload, &led); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if led.Color != "red" || led.Mode != "blink" {
		t.Errorf("led = %+v", led)
	}
}

func TestUpdateConfig_PublishesDocumentVerbatim(t *testing.T) {
	transport := &fakeTransport{}
	pub := NewPublisher(transport)

	if err := pub.UpdateConfig("target-07", map[string]any{"sensitivity": 7}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}

	msg := transport.published[0]
	if msg.topic != "arena/devices/target-07/config" {
		t.Errorf("topic = %q", msg.topic)
	}
}

func TestPublish_FailsFastWhenDisconnected(t *testing.T) {
	transport := &fakeTransport{err: mqtt.ErrNotConnected}
	pub := NewPublisher(transport)

	err := pub.SendControl("target-07", "activate", nil)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected passed through", err)
	}
	if len(transport.published) != 0 {
		t.Error("message queued despite dead transport")
	}
}

func TestValidation(t *testing.T) {
	pub := NewPublisher(&fakeTransport{})

	if err := pub.SendControl("", "activate", nil); err == nil {
		t.Error("SendControl accepted empty device id")
	}
	if err := pub.SendControl("target-07", "", nil); err == nil {
		t.Error("SendControl accepted empty command")
	}
	if err := pub.SetLED("target-07", "", ""); err == nil {
		t.Error("SetLED accepted empty color")
	}
	if err := pub.UpdateConfig("target-07", nil); err == nil {
		t.Error("UpdateConfig accepted empty config")
	}
}
