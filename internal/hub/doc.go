// Package hub manages WebSocket connections and room-based fan-out.
//
// The hub is transport only: it knows connections, rooms and queues, not
// message semantics. The session router decides who joins which room and
// what gets broadcast.
package hub
