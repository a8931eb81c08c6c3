package match

import "time"

// State is the lifecycle phase of a match.
//
// Transitions: waiting -> countdown -> playing -> finished, with
// countdown -> waiting on cancel. Finished is terminal.
type State string

const (
	StateWaiting   State = "waiting"
	StateCountdown State = "countdown"
	StatePlaying   State = "playing"
	StateFinished  State = "finished"
)

// Participant is a player (or an unattributed device) accumulating score
// in a match.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Score int    `json:"score"`

	// seq orders participants who share a score: whoever reached the
	// score first ranks higher. Updated on join and on every score change.
	seq uint64

	JoinedAt time.Time `json:"joined_at"`
}

// Info is a read-only snapshot of a match for API responses.
type Info struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatorID        string    `json:"creator_id"`
	State            State     `json:"state"`
	TargetScore      int       `json:"target_score,omitempty"`
	CountdownSeconds int       `json:"countdown_seconds"`
	Participants     int        `json:"participants"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// RankEntry is one row of a match ranking.
type RankEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Score    int    `json:"score"`
}

// Outbound wire messages broadcast to the match room.

// CountdownMsg is sent once per second during countdown, from the full
// countdown value down to zero inclusive.
type CountdownMsg struct {
	Type      string `json:"type"`
	MatchID   string `json:"match_id"`
	Remaining int    `json:"remaining"`
}

// StartedMsg is sent exactly once, after the zero countdown tick.
type StartedMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// RankingMsg carries the current standings.
type RankingMsg struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id"`
	Ranking []RankEntry `json:"ranking"`
}

// ScoreUpdateMsg is sent whenever a participant's score changes.
type ScoreUpdateMsg struct {
	Type     string `json:"type"`
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
	Delta    int    `json:"delta"`
}

// FinishedMsg closes out a match with the final standings.
type FinishedMsg struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id"`
	Reason  string      `json:"reason"`
	Ranking []RankEntry `json:"ranking"`
}
