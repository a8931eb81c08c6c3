package match

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Logger defines the logging interface used by the Manager.
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

// Broadcaster is the slice of the connection hub the manager needs.
type Broadcaster interface {
	Broadcast(room string, v any)
}

// Room returns the hub room name for a match.
func Room(matchID string) string {
	return "match:" + matchID
}

// match is the internal mutable state. All fields past the mutex are
// guarded by it; per-match serialisation is the concurrency contract.
type match struct {
	mu sync.Mutex

	id               string
	name             string
	creatorID        string
	state            State
	targetScore      int
	countdownSeconds int

	participants map[string]*Participant
	seq          uint64

	// countdownGen invalidates stale countdown goroutines. A cancel or
	// restart bumps the generation; ticks from an old generation are
	// discarded without broadcasting.
	countdownGen int

	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
}

// Manager owns every live match and drives the countdown timers.
//
// The countdown is server-owned: clients render ticks they receive and
// never advance state themselves.
type Manager struct {
	mu      sync.RWMutex
	matches map[string]*match

	hub    Broadcaster
	clock  clockwork.Clock
	logger Logger
}

// NewManager creates a match manager broadcasting through hub.
func NewManager(hub Broadcaster) *Manager {
	return &Manager{
		matches: make(map[string]*match),
		hub:     hub,
		clock:   clockwork.NewRealClock(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetClock replaces the wall clock. For tests.
func (m *Manager) SetClock(clock clockwork.Clock) {
	m.clock = clock
}

// Create registers a new match in the waiting state and returns its info.
// targetScore zero disables the score-based finish rule.
func (m *Manager) Create(creatorID, name string, targetScore, countdownSeconds int) Info {
	if countdownSeconds < 0 {
		countdownSeconds = 0
	}

	mt := &match{
		id:               uuid.NewString(),
		name:             name,
		creatorID:        creatorID,
		state:            StateWaiting,
		targetScore:      targetScore,
		countdownSeconds: countdownSeconds,
		participants:     make(map[string]*Participant),
		createdAt:        m.clock.Now().UTC(),
	}

	m.mu.Lock()
	m.matches[mt.id] = mt
	m.mu.Unlock()

	m.logger.Info("match created", "id", mt.id, "creator", creatorID)
	return mt.info()
}

// Get returns a snapshot of a match.
func (m *Manager) Get(matchID string) (Info, error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return Info{}, err
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.info(), nil
}

// List returns snapshots of all matches.
func (m *Manager) List() []Info {
	m.mu.RLock()
	matches := make([]*match, 0, len(m.matches))
	for _, mt := range m.matches {
		matches = append(matches, mt)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(matches))
	for _, mt := range matches {
		mt.mu.Lock()
		infos = append(infos, mt.info())
		mt.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Join adds a participant. Joining is idempotent and allowed while the
// match is waiting or counting down; a running or finished match rejects
// new participants.
func (m *Manager) Join(matchID, playerID, name string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.state != StateWaiting && mt.state != StateCountdown {
		return ErrInvalidTransition
	}

	if p, ok := mt.participants[playerID]; ok {
		if name != "" {
			p.Name = name
		}
		return nil
	}

	mt.seq++
	mt.participants[playerID] = &Participant{
		ID:       playerID,
		Name:     name,
		seq:      mt.seq,
		JoinedAt: m.clock.Now().UTC(),
	}
	return nil
}

// Start begins the countdown. Creator-only; legal only from waiting.
//
// The countdown broadcasts countdownSeconds+1 ticks (S down to 0
// inclusive) at one-second intervals, then exactly one match_started.
func (m *Manager) Start(matchID, byUserID string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	if mt.creatorID != byUserID {
		mt.mu.Unlock()
		return ErrNotCreator
	}
	if mt.state != StateWaiting {
		mt.mu.Unlock()
		return ErrInvalidTransition
	}

	mt.state = StateCountdown
	mt.countdownGen++
	gen := mt.countdownGen
	mt.mu.Unlock()

	m.logger.Info("match countdown started", "id", matchID, "seconds", mt.countdownSeconds)
	go m.runCountdown(mt, gen)
	return nil
}

// Cancel aborts a countdown, returning the match to waiting.
// Creator-only; legal only from countdown.
func (m *Manager) Cancel(matchID, byUserID string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.creatorID != byUserID {
		return ErrNotCreator
	}
	if mt.state != StateCountdown {
		return ErrInvalidTransition
	}

	mt.state = StateWaiting
	mt.countdownGen++ // invalidate the running countdown goroutine

	m.logger.Info("match countdown cancelled", "id", matchID)
	return nil
}

// End finishes a running match. Creator-only; legal only from playing.
// Broadcasts match_finished with the final ranking.
func (m *Manager) End(matchID, byUserID string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	if mt.creatorID != byUserID {
		mt.mu.Unlock()
		return ErrNotCreator
	}
	if mt.state != StatePlaying {
		mt.mu.Unlock()
		return ErrInvalidTransition
	}
	msg := mt.finishLocked(m.clock.Now().UTC(), "ended")
	mt.mu.Unlock()

	m.hub.Broadcast(Room(matchID), msg)
	m.logger.Info("match ended", "id", matchID)
	return nil
}

// VerifyCountdownComplete answers a client's claim that the countdown has
// elapsed. The server trusts only its own tick count: if the match is not
// yet playing the claim is premature and rejected.
func (m *Manager) VerifyCountdownComplete(matchID string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.state != StatePlaying {
		return ErrInvalidTransition
	}
	return nil
}

// RecordScore credits points to a participant while the match is playing
// and broadcasts the score update plus the refreshed ranking.
//
// Unknown participant IDs are registered on the fly so shared-lane
// devices can score without an explicit join.
//
// Returns true when this score ended the match via the target-score rule.
func (m *Manager) RecordScore(matchID, playerID, name string, points int) (finished bool, err error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return false, err
	}

	mt.mu.Lock()
	if mt.state != StatePlaying {
		mt.mu.Unlock()
		return false, ErrInvalidTransition
	}

	p, ok := mt.participants[playerID]
	if !ok {
		p = &Participant{ID: playerID, Name: name, JoinedAt: m.clock.Now().UTC()}
		mt.participants[playerID] = p
	}

	p.Score += points
	mt.seq++
	p.seq = mt.seq // reached this score now; later arrivals at the same score rank below

	scoreMsg := ScoreUpdateMsg{
		Type:     "team_score_update",
		MatchID:  matchID,
		PlayerID: playerID,
		Score:    p.Score,
		Delta:    points,
	}
	rankMsg := RankingMsg{
		Type:    "match_ranking",
		MatchID: matchID,
		Ranking: mt.rankingLocked(),
	}

	var finishMsg *FinishedMsg
	if mt.targetScore > 0 && p.Score >= mt.targetScore {
		msg := mt.finishLocked(m.clock.Now().UTC(), "target_score")
		finishMsg = &msg
	}
	mt.mu.Unlock()

	room := Room(matchID)
	m.hub.Broadcast(room, scoreMsg)
	m.hub.Broadcast(room, rankMsg)
	if finishMsg != nil {
		m.hub.Broadcast(room, *finishMsg)
		m.logger.Info("match finished on target score", "id", matchID, "player", playerID)
		return true, nil
	}
	return false, nil
}

// Ranking returns the current standings: score descending, ties broken
// by earliest arrival at the current score.
func (m *Manager) Ranking(matchID string) ([]RankEntry, error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return nil, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.rankingLocked(), nil
}

// State returns the current lifecycle state of a match.
func (m *Manager) State(matchID string) (State, error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return "", err
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.state, nil
}

func (m *Manager) lookup(matchID string) (*match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return mt, nil
}

// runCountdown drives one countdown generation. It exits silently the
// moment the generation is stale (cancelled or superseded).
func (m *Manager) runCountdown(mt *match, gen int) {
	remaining := mt.countdownSeconds

	// First tick (the full value) goes out immediately.
	if !m.countdownTick(mt, gen, remaining) {
		return
	}

	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining > 0 {
		<-ticker.Chan()
		remaining--
		if !m.countdownTick(mt, gen, remaining) {
			return
		}
	}

	mt.mu.Lock()
	if mt.countdownGen != gen || mt.state != StateCountdown {
		mt.mu.Unlock()
		return
	}
	now := m.clock.Now().UTC()
	mt.state = StatePlaying
	mt.startedAt = &now
	mt.mu.Unlock()

	m.hub.Broadcast(Room(mt.id), StartedMsg{Type: "match_started", MatchID: mt.id})
	m.logger.Info("match started", "id", mt.id)
}

// countdownTick broadcasts one countdown value. Returns false when the
// generation is stale and the goroutine should exit.
func (m *Manager) countdownTick(mt *match, gen, remaining int) bool {
	mt.mu.Lock()
	if mt.countdownGen != gen || mt.state != StateCountdown {
		mt.mu.Unlock()
		return false
	}
	mt.mu.Unlock()

	m.hub.Broadcast(Room(mt.id), CountdownMsg{
		Type:      "match_countdown",
		MatchID:   mt.id,
		Remaining: remaining,
	})
	return true
}

// info builds a snapshot. Caller holds mt.mu (or has exclusive access).
func (mt *match) info() Info {
	return Info{
		ID:               mt.id,
		Name:             mt.name,
		CreatorID:        mt.creatorID,
		State:            mt.state,
		TargetScore:      mt.targetScore,
		CountdownSeconds: mt.countdownSeconds,
		Participants:     len(mt.participants),
		CreatedAt:        mt.createdAt,
		StartedAt:        mt.startedAt,
		FinishedAt:       mt.finishedAt,
	}
}

// rankingLocked computes standings. Caller holds mt.mu.
func (mt *match) rankingLocked() []RankEntry {
	participants := make([]*Participant, 0, len(mt.participants))
	for _, p := range mt.participants {
		participants = append(participants, p)
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		return participants[i].seq < participants[j].seq
	})

	ranking := make([]RankEntry, len(participants))
	for i, p := range participants {
		ranking[i] = RankEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		}
	}
	return ranking
}

// finishLocked transitions to finished and builds the closing broadcast.
// Caller holds mt.mu.
func (mt *match) finishLocked(now time.Time, reason string) FinishedMsg {
	mt.state = StateFinished
	mt.finishedAt = &now
	mt.countdownGen++ // stop any stray countdown

	return FinishedMsg{
		Type:    "match_finished",
		MatchID: mt.id,
		Reason:  reason,
		Ranking: mt.rankingLocked(),
	}
}
