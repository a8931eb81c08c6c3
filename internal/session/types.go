package session

import "time"

// Room name builders. Rooms are plain strings scoped by prefix so team,
// match and device feeds never collide.

// TeamRoom returns the hub room name for a team.
func TeamRoom(teamID string) string {
	return "team:" + teamID
}

// DeviceRoom returns the hub room name for a device feed.
func DeviceRoom(deviceID string) string {
	return "device:" + deviceID
}

// Inbound client messages, discriminated by the type field. The envelope
// is parsed first; the full message is re-parsed per type.

type envelope struct {
	Type string `json:"type"`
}

// TeamJoinMsg enters a team room. user_name overrides the token name for
// display purposes only; identity always comes from the verified token.
type TeamJoinMsg struct {
	TeamID   string `json:"team_id"`
	UserName string `json:"user_name,omitempty"`
}

// TeamLeaveMsg exits a team room explicitly.
type TeamLeaveMsg struct {
	TeamID string `json:"team_id"`
}

// TeamChatMsg relays a chat line to the team.
type TeamChatMsg struct {
	TeamID  string `json:"team_id"`
	Message string `json:"message"`
}

// TeamLocationMsg reports the sender's position. One live entry per
// member; each update overwrites the previous one.
type TeamLocationMsg struct {
	TeamID    string  `json:"team_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// TeamVoteMsg casts a ballot on a page. allow_change on the incoming
// ballot decides whether it may replace the sender's earlier ballot for
// the same page.
type TeamVoteMsg struct {
	TeamID      string `json:"team_id"`
	PageID      string `json:"page_id"`
	Choice      string `json:"choice"`
	AllowChange bool   `json:"allow_change,omitempty"`
}

// TeamReadyMsg toggles the sender's ready flag.
type TeamReadyMsg struct {
	TeamID string `json:"team_id"`
	Ready  bool   `json:"ready"`
}

// MatchJoinMsg enters a match as a participant.
type MatchJoinMsg struct {
	MatchID string `json:"match_id"`
}

// MatchStartMsg begins the countdown. Creator only.
type MatchStartMsg struct {
	MatchID string `json:"match_id"`
}

// MatchEndMsg finishes a running match. Creator only.
type MatchEndMsg struct {
	MatchID string `json:"match_id"`
}

// MatchCountdownCompleteMsg is a client's claim that the countdown has
// elapsed. The server verifies against its own timer and never advances
// state on the client's word.
type MatchCountdownCompleteMsg struct {
	MatchID string `json:"match_id"`
}

// DeviceSubscribeMsg joins a device's event feed.
type DeviceSubscribeMsg struct {
	DeviceID string `json:"device_id"`
}

// DeviceUnsubscribeMsg leaves a device's event feed.
type DeviceUnsubscribeMsg struct {
	DeviceID string `json:"device_id"`
}

// Outbound messages broadcast to rooms or sent to a single client.

// MemberInfo is one row of a team roster.
type MemberInfo struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Ready    bool   `json:"ready"`
}

// MemberJoinedMsg announces a join to the whole room, sender included,
// carrying the full roster so late joiners need no separate query.
type MemberJoinedMsg struct {
	Type     string       `json:"type"`
	TeamID   string       `json:"team_id"`
	UserID   string       `json:"user_id"`
	UserName string       `json:"user_name,omitempty"`
	Members  []MemberInfo `json:"members"`
}

// MemberLeftMsg announces a departure, explicit or by disconnect.
type MemberLeftMsg struct {
	Type     string `json:"type"`
	TeamID   string `json:"team_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// ChatMsg relays one chat line.
type ChatMsg struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationMsg broadcasts a member's latest position.
type LocationMsg struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteCastMsg rebroadcasts an accepted ballot. The router does no tally;
// counting is page logic on the consumer side.
type VoteCastMsg struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
	PageID string `json:"page_id"`
	UserID string `json:"user_id"`
	Choice string `json:"choice"`
}

// ReadyUpdateMsg broadcasts a member's ready flag.
type ReadyUpdateMsg struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Ready  bool   `json:"ready"`
}

// RelayHandoffMsg is sent to a user's older connection when the same user
// joins the team again on a new connection. The old connection is not
// force-closed; it is simply no longer the canonical presence.
type RelayHandoffMsg struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

// ErrorMsg is sent to the offending sender only, never broadcast.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
