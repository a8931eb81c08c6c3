// Package ingest consumes device messages from the MQTT bus.
//
// Three action channels are subscribed per device namespace: status,
// heartbeat and hit. Each message updates the registry, is persisted
// where the action calls for it, credits match scores for hits carrying
// a game id, and is re-emitted verbatim to the device's feed room.
package ingest
