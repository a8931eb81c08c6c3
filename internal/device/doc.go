// Package device tracks shooting-target devices and their presence.
//
// The Registry is the authoritative in-memory view, write-through to a
// SQLite repository. Devices self-register on first MQTT contact; the
// Reaper detects silent disconnects by sweeping for stale heartbeats.
//
// Hit events and device logs share the same repository implementation but
// are exposed through narrow interfaces so consumers depend only on what
// they use.
package device
