package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHit records a scored hit from a target device.
//
// The write is non-blocking; data is batched and sent asynchronously.
// matchID and playerID may be empty when the hit arrives outside a match.
func (c *Client) WriteHit(deviceID, matchID, playerID, hitZone string, score int) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
	}
	if matchID != "" {
		tags["match_id"] = matchID
	}
	if hitZone != "" {
		tags["hit_zone"] = hitZone
	}

	fields := map[string]interface{}{
		"score": score,
	}
	if playerID != "" {
		fields["player_id"] = playerID
	}

	c.writeAPI.WritePoint(write.NewPoint("hits", tags, fields, time.Now()))
}

// WriteDevicePresence records a device online/offline transition.
//
// online is written as 1/0 so dashboards can graph availability directly.
func (c *Client) WriteDevicePresence(deviceID string, online bool, reason string) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if online {
		value = 1
	}

	point := write.NewPoint(
		"device_presence",
		map[string]string{
			"device_id": deviceID,
			"reason":    reason,
		},
		map[string]interface{}{
			"online": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
