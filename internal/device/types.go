package device

import "time"

// Status is the presence state of a target device.
type Status string

const (
	// StatusOnline means the device has reported within the offline threshold.
	StatusOnline Status = "online"

	// StatusOffline means the device is silent or reported itself offline.
	StatusOffline Status = "offline"

	// StatusError means the device reported a fault condition.
	StatusError Status = "error"
)

// Valid reports whether the status is one of the recognised values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusError:
		return true
	}
	return false
}

// Device represents a shooting-target device known to this site.
//
// Devices self-register: the first status or heartbeat message on the MQTT
// bus creates the entry. There is no provisioning step.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	Status Status `json:"status"`

	FirmwareVersion string `json:"firmware_version,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	Location        string `json:"location,omitempty"`

	// LastHeartbeat is nil until the device has reported at least once.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Device.
// Required for cache isolation: callers must never share pointers with
// the registry's internal cache.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.LastHeartbeat != nil {
		hb := *d.LastHeartbeat
		cpy.LastHeartbeat = &hb
	}
	return &cpy
}

// StatusUpdate carries the fields of a device status report.
// Empty fields leave the stored value unchanged.
type StatusUpdate struct {
	Status          Status
	DeviceName      string
	FirmwareVersion string
	IPAddress       string
	Location        string
}

// HitEvent is a single scored hit reported by a target device.
//
// MatchID and PlayerID are empty when the hit arrives outside a match or
// without player attribution.
type HitEvent struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	MatchID     string    `json:"match_id,omitempty"`
	PlayerID    string    `json:"player_id,omitempty"`
	Score       int       `json:"score"`
	HitZone     string    `json:"hit_zone,omitempty"`
	HitPosition string    `json:"hit_position,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogLevel classifies device log entries.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log is a device lifecycle or fault record. Malformed MQTT payloads and
// reaper offline transitions are recorded here.
type Log struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Level     LogLevel  `json:"level"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
