package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/arenalink/arena-core/internal/device"
	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
	"github.com/arenalink/arena-core/internal/session"
)

// Logger defines the logging interface used by the Ingestor.
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

// Subscriber is the slice of the MQTT client the ingestor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Broadcaster is the slice of the connection hub the ingestor needs.
type Broadcaster interface {
	Broadcast(room string, v any)
}

// ScoreRecorder credits match scores. Satisfied by match.Manager.
type ScoreRecorder interface {
	RecordScore(matchID, playerID, name string, points int) (finished bool, err error)
}

// Telemetry receives non-blocking measurement writes. Satisfied by the
// InfluxDB client; nil disables telemetry.
type Telemetry interface {
	WriteHit(deviceID, matchID, playerID, hitZone string, score int)
}

// statusPayload is a device status report. Empty fields leave the stored
// value unchanged.
type statusPayload struct {
	Status          string `json:"status"`
	DeviceName      string `json:"device_name"`
	FirmwareVersion string `json:"firmware_version"`
	IPAddress       string `json:"ip_address"`
	Location        string `json:"location"`
}

// hitPayload is a scored hit. game_id carries the match identifier;
// player_id attributes the hit when the lane knows who is shooting.
type hitPayload struct {
	Score       int    `json:"score"`
	GameID      string `json:"game_id"`
	PlayerID    string `json:"player_id"`
	HitZone     string `json:"hit_zone"`
	HitPosition string `json:"hit_position"`
}

// DeviceMessage is the generic re-emission of every inbound device
// message to the device's feed room, regardless of action type.
type DeviceMessage struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"device_id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Ingestor consumes the device topic namespace and drives the registry,
// persistence, match scoring and client fan-out from it.
//
// A failure handling one message is scoped to that message: the payload
// is recorded as a device log row and the subscription keeps running.
type Ingestor struct {
	registry *device.Registry
	hits     device.HitRepository
	logs     device.LogRepository
	matches  ScoreRecorder
	hub      Broadcaster

	telemetry Telemetry
	clock     clockwork.Clock
	logger    Logger
}

// New creates an ingestor. Telemetry is optional; set it with SetTelemetry.
func New(registry *device.Registry, hits device.HitRepository, logs device.LogRepository, matches ScoreRecorder, hub Broadcaster) *Ingestor {
	return &Ingestor{
		registry: registry,
		hits:     hits,
		logs:     logs,
		matches:  matches,
		hub:      hub,
		clock:    clockwork.NewRealClock(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the ingestor.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// SetClock replaces the wall clock. For tests.
func (i *Ingestor) SetClock(clock clockwork.Clock) {
	i.clock = clock
}

// SetTelemetry enables measurement writes for hits.
func (i *Ingestor) SetTelemetry(t Telemetry) {
	i.telemetry = t
}

// Start subscribes the three device action channels at the given QoS.
func (i *Ingestor) Start(sub Subscriber, qos byte) error {
	topics := mqtt.Topics{}

	if err := sub.Subscribe(topics.AllDeviceStatus(), qos, i.HandleStatus); err != nil {
		return fmt.Errorf("subscribing device status: %w", err)
	}
	if err := sub.Subscribe(topics.AllDeviceHeartbeats(), qos, i.HandleHeartbeat); err != nil {
		return fmt.Errorf("subscribing device heartbeats: %w", err)
	}
	if err := sub.Subscribe(topics.AllDeviceHits(), qos, i.HandleHit); err != nil {
		return fmt.Errorf("subscribing device hits: %w", err)
	}

	i.logger.Info("device ingestion started", "qos", qos)
	return nil
}

// HandleStatus processes one status report: upsert (implicit registration
// for unseen ids) and re-emit to the device feed.
func (i *Ingestor) HandleStatus(topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		i.logger.Warn("status on unparseable topic", "topic", topic)
		return nil
	}

	ctx := context.Background()

	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		i.recordMalformed(ctx, deviceID, topic, payload, err)
		return nil
	}

	status := device.Status(p.Status)
	if p.Status == "" {
		status = device.StatusOnline // a report is itself a liveness signal
	}
	if !status.Valid() {
		i.recordMalformed(ctx, deviceID, topic, payload, fmt.Errorf("unknown status %q", p.Status))
		return nil
	}

	if _, err := i.registry.ApplyStatus(ctx, deviceID, device.StatusUpdate{
		Status:          status,
		DeviceName:      p.DeviceName,
		FirmwareVersion: p.FirmwareVersion,
		IPAddress:       p.IPAddress,
		Location:        p.Location,
	}); err != nil {
		i.logger.Error("applying device status", "device_id", deviceID, "error", err)
		return err
	}

	i.reemit(deviceID, "status", payload)
	return nil
}

// HandleHeartbeat processes one liveness ping: the device is forced
// online and its last-heartbeat refreshed, whatever the payload says.
func (i *Ingestor) HandleHeartbeat(topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		i.logger.Warn("heartbeat on unparseable topic", "topic", topic)
		return nil
	}

	if _, err := i.registry.Heartbeat(context.Background(), deviceID); err != nil {
		i.logger.Error("recording heartbeat", "device_id", deviceID, "error", err)
		return err
	}

	i.reemit(deviceID, "heartbeat", payload)
	return nil
}

// HandleHit processes one scored hit: persist the event, credit the match
// when the payload names one, write telemetry and re-emit to the feed.
func (i *Ingestor) HandleHit(topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		i.logger.Warn("hit on unparseable topic", "topic", topic)
		return nil
	}

	ctx := context.Background()

	var p hitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		i.recordMalformed(ctx, deviceID, topic, payload, err)
		return nil
	}

	// A hit also proves the device is alive.
	if _, err := i.registry.Heartbeat(ctx, deviceID); err != nil {
		i.logger.Error("recording hit heartbeat", "device_id", deviceID, "error", err)
	}

	hit := &device.HitEvent{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		MatchID:     p.GameID,
		PlayerID:    p.PlayerID,
		Score:       p.Score,
		HitZone:     p.HitZone,
		HitPosition: p.HitPosition,
		CreatedAt:   i.clock.Now().UTC(),
	}
	if err := i.hits.AppendHit(ctx, hit); err != nil {
		i.logger.Error("persisting hit", "device_id", deviceID, "error", err)
	}

	if p.GameID != "" {
		// Attribute to the player when known, else to the lane's device.
		scorer := p.PlayerID
		if scorer == "" {
			scorer = deviceID
		}
		if _, err := i.matches.RecordScore(p.GameID, scorer, "", p.Score); err != nil {
			i.logger.Warn("crediting match score", "match_id", p.GameID, "device_id", deviceID, "error", err)
		}
	}

	if i.telemetry != nil {
		i.telemetry.WriteHit(deviceID, p.GameID, p.PlayerID, p.HitZone, p.Score)
	}

	i.reemit(deviceID, "hit", payload)
	return nil
}

// reemit forwards the raw message to the device's feed room for UI
// observers that want everything without semantic dispatch.
func (i *Ingestor) reemit(deviceID, action string, payload []byte) {
	data := json.RawMessage(payload)
	if !json.Valid(payload) {
		data = nil
	}
	i.hub.Broadcast(session.DeviceRoom(deviceID), DeviceMessage{
		Type:      "device_message",
		DeviceID:  deviceID,
		Action:    action,
		Data:      data,
		Timestamp: i.clock.Now().UTC(),
	})
}

// recordMalformed files an error-class device log row for an unparseable
// payload. The message is dropped entirely: it is not re-emitted to the
// device feed, so subscribers only ever see payloads that parsed. The
// log row is the sole trace.
func (i *Ingestor) recordMalformed(ctx context.Context, deviceID, topic string, payload []byte, cause error) {
	i.logger.Warn("malformed device payload", "topic", topic, "error", cause)

	detail := fmt.Sprintf("topic=%s error=%v payload=%.256s", topic, cause, payload)
	if err := i.logs.AppendLog(ctx, &device.Log{
		DeviceID:  deviceID,
		Level:     device.LogLevelError,
		Event:     "malformed_payload",
		Detail:    detail,
		CreatedAt: i.clock.Now().UTC(),
	}); err != nil {
		i.logger.Error("recording malformed payload", "device_id", deviceID, "error", err)
	}
}
