package api

import "net/http"

// handleMetrics returns a JSON snapshot of the core's live counters.
// This is a monitoring convenience, not a full metrics pipeline.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	mqttConnected := false
	subscriptions := 0
	if s.mqtt != nil {
		mqttConnected = s.mqtt.IsConnected()
		subscriptions = s.mqtt.SubscriptionCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":            s.version,
		"websocket_clients":  s.hub.ClientCount(),
		"devices_known":      s.registry.Count(),
		"devices_online":     len(s.registry.ListOnline()),
		"matches":            len(s.matches.List()),
		"mqtt_connected":     mqttConnected,
		"mqtt_subscriptions": subscriptions,
	})
}
