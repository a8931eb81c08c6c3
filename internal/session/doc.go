// Package session routes inbound client messages to team presence state
// and the match manager.
//
// The router is transport logic only. It classifies messages by their
// type field, keeps the derived per-team state (roster, locations,
// ballots, ready flags) and rebroadcasts through the hub. Game rules
// such as vote tallying stay with the consumers of those broadcasts.
package session
