package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/arenalink/arena-core/internal/hub"
	"github.com/arenalink/arena-core/internal/match"
)

// Logger defines the logging interface used by the Router.
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

// ballot is one recorded vote. Whether it may be replaced is decided by
// the replacing message's own allow_change flag.
type ballot struct {
	Choice string
	CastAt time.Time
}

// member is a team member's derived presence state.
type member struct {
	UserID   string
	Name     string
	Ready    bool
	Location *TeamLocationMsg
}

// teamState is everything the router tracks per team. Guarded by the
// router mutex; teams are small so one lock covers all of them.
type teamState struct {
	members map[string]*member            // by user id
	votes   map[string]map[string]*ballot // page id -> user id -> ballot
	conns   map[string]*hub.Client        // canonical connection per user
}

func newTeamState() *teamState {
	return &teamState{
		members: make(map[string]*member),
		votes:   make(map[string]map[string]*ballot),
		conns:   make(map[string]*hub.Client),
	}
}

// rosterLocked builds the member list for join broadcasts.
func (ts *teamState) rosterLocked() []MemberInfo {
	roster := make([]MemberInfo, 0, len(ts.members))
	for _, m := range ts.members {
		roster = append(roster, MemberInfo{UserID: m.UserID, UserName: m.Name, Ready: m.Ready})
	}
	return roster
}

// Hub is the slice of the connection hub the router needs.
type Hub interface {
	Join(c *hub.Client, room string)
	Leave(c *hub.Client, room string)
	Broadcast(room string, v any)
	Send(c *hub.Client, v any) bool
}

// Router dispatches inbound client messages by their type field and owns
// the derived per-team presence state (membership, locations, ballots,
// ready flags).
//
// Malformed messages are dropped without terminating the connection.
// Semantic errors (vote locked, invalid match transition) go back to the
// sender only, as an error message, never broadcast.
type Router struct {
	hub     Hub
	matches *match.Manager

	mu    sync.Mutex
	teams map[string]*teamState
	// teamIDs joined per connection, for disconnect cleanup. The hub's own
	// room maps are already cleared by the time OnClose fires.
	joined map[*hub.Client]map[string]struct{}

	clock  clockwork.Clock
	logger Logger
}

// NewRouter creates a session router on top of the hub and match manager.
func NewRouter(h Hub, matches *match.Manager) *Router {
	return &Router{
		hub:     h,
		matches: matches,
		teams:   make(map[string]*teamState),
		joined:  make(map[*hub.Client]map[string]struct{}),
		clock:   clockwork.NewRealClock(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the wall clock. For tests.
func (r *Router) SetClock(clock clockwork.Clock) {
	r.clock = clock
}

// Attach wires a client's message and close handlers to the router.
// Call before Client.Start.
func (r *Router) Attach(c *hub.Client) {
	c.OnMessage(r.HandleMessage)
	c.OnClose(r.HandleClose)
}

// HandleMessage classifies one inbound frame and dispatches it.
func (r *Router) HandleMessage(c *hub.Client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.logger.Debug("dropping malformed message", "conn_id", c.ConnID)
		return
	}

	switch env.Type {
	case "team_join":
		r.handleTeamJoin(c, data)
	case "team_leave":
		r.handleTeamLeave(c, data)
	case "team_chat":
		r.handleTeamChat(c, data)
	case "team_location":
		r.handleTeamLocation(c, data)
	case "team_vote":
		r.handleTeamVote(c, data)
	case "team_ready":
		r.handleTeamReady(c, data)
	case "match_join":
		r.handleMatchJoin(c, data)
	case "match_start":
		r.handleMatchStart(c, data)
	case "match_end":
		r.handleMatchEnd(c, data)
	case "match_countdown_complete":
		r.handleCountdownComplete(c, data)
	case "device_subscribe":
		r.handleDeviceSubscribe(c, data)
	case "device_unsubscribe":
		r.handleDeviceUnsubscribe(c, data)
	default:
		r.logger.Debug("unknown message type", "type", env.Type, "conn_id", c.ConnID)
	}
}

// HandleClose removes the connection's presence from every team it joined
// and broadcasts member-left notices. Registered as the client's close
// handler; runs after the hub has already unregistered the connection.
func (r *Router) HandleClose(c *hub.Client) {
	r.mu.Lock()
	teams := make([]string, 0, len(r.joined[c]))
	for teamID := range r.joined[c] {
		teams = append(teams, teamID)
	}
	delete(r.joined, c)
	r.mu.Unlock()

	for _, teamID := range teams {
		r.leaveTeam(c, teamID)
	}
}

// team returns (creating if needed) the state for a team. Caller holds r.mu.
func (r *Router) team(teamID string) *teamState {
	ts, ok := r.teams[teamID]
	if !ok {
		ts = newTeamState()
		r.teams[teamID] = ts
	}
	return ts
}

func (r *Router) sendError(c *hub.Client, message string) {
	r.hub.Send(c, ErrorMsg{Type: "error", Message: message})
}

func (r *Router) handleTeamJoin(c *hub.Client, data []byte) {
	var msg TeamJoinMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" {
		return
	}
	name := msg.UserName
	if name == "" {
		name = c.Name
	}
	room := TeamRoom(msg.TeamID)

	r.mu.Lock()
	ts := r.team(msg.TeamID)
	prev := ts.conns[c.UserID]
	ts.conns[c.UserID] = c

	m, ok := ts.members[c.UserID]
	if !ok {
		m = &member{UserID: c.UserID}
		ts.members[c.UserID] = m
	}
	if name != "" {
		m.Name = name
	}

	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][msg.TeamID] = struct{}{}
	roster := ts.rosterLocked()
	r.mu.Unlock()

	r.hub.Join(c, room)

	// Same user on a fresh connection: the older connection is told it has
	// been superseded but keeps receiving room traffic until it closes.
	if prev != nil && prev != c {
		r.hub.Send(prev, RelayHandoffMsg{Type: "relay_handoff", TeamID: msg.TeamID, UserID: c.UserID})
	}

	// Joined notice goes to the whole room, sender included, so the sender
	// gets the roster on the same channel as everyone else.
	r.hub.Broadcast(room, MemberJoinedMsg{
		Type:     "team_member_joined",
		TeamID:   msg.TeamID,
		UserID:   c.UserID,
		UserName: m.Name,
		Members:  roster,
	})
	r.logger.Debug("team join", "team", msg.TeamID, "user", c.UserID)
}

func (r *Router) handleTeamLeave(c *hub.Client, data []byte) {
	var msg TeamLeaveMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" {
		return
	}

	r.mu.Lock()
	if set := r.joined[c]; set != nil {
		delete(set, msg.TeamID)
	}
	r.mu.Unlock()

	r.leaveTeam(c, msg.TeamID)
}

// leaveTeam removes presence and broadcasts member-left. A stale
// connection (superseded by a relay handoff) leaves the room quietly
// without disturbing the newer connection's presence.
func (r *Router) leaveTeam(c *hub.Client, teamID string) {
	room := TeamRoom(teamID)

	r.mu.Lock()
	ts, ok := r.teams[teamID]
	if !ok {
		r.mu.Unlock()
		r.hub.Leave(c, room)
		return
	}
	if ts.conns[c.UserID] != c {
		r.mu.Unlock()
		r.hub.Leave(c, room)
		return
	}

	m := ts.members[c.UserID]
	delete(ts.members, c.UserID)
	delete(ts.conns, c.UserID)
	if len(ts.members) == 0 {
		delete(r.teams, teamID)
	}
	r.mu.Unlock()

	r.hub.Leave(c, room)

	name := ""
	if m != nil {
		name = m.Name
	}
	r.hub.Broadcast(room, MemberLeftMsg{
		Type:     "team_member_left",
		TeamID:   teamID,
		UserID:   c.UserID,
		UserName: name,
	})
	r.logger.Debug("team leave", "team", teamID, "user", c.UserID)
}

// memberOf returns the sender's presence entry, or nil when the sender
// has not joined the team.
func (r *Router) memberOf(teamID, userID string) *member {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.teams[teamID]
	if !ok {
		return nil
	}
	return ts.members[userID]
}

func (r *Router) handleTeamChat(c *hub.Client, data []byte) {
	var msg TeamChatMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" {
		return
	}
	m := r.memberOf(msg.TeamID, c.UserID)
	if m == nil {
		r.sendError(c, "not a member of team "+msg.TeamID)
		return
	}

	r.hub.Broadcast(TeamRoom(msg.TeamID), ChatMsg{
		Type:      "team_chat",
		TeamID:    msg.TeamID,
		UserID:    c.UserID,
		UserName:  m.Name,
		Message:   msg.Message,
		Timestamp: r.clock.Now().UTC(),
	})
}

func (r *Router) handleTeamLocation(c *hub.Client, data []byte) {
	var msg TeamLocationMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" {
		return
	}

	r.mu.Lock()
	ts, ok := r.teams[msg.TeamID]
	if !ok || ts.members[c.UserID] == nil {
		r.mu.Unlock()
		r.sendError(c, "not a member of team "+msg.TeamID)
		return
	}
	m := ts.members[c.UserID]
	m.Location = &msg // last write wins
	name := m.Name
	r.mu.Unlock()

	r.hub.Broadcast(TeamRoom(msg.TeamID), LocationMsg{
		Type:      "team_location",
		TeamID:    msg.TeamID,
		UserID:    c.UserID,
		UserName:  name,
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
		Accuracy:  msg.Accuracy,
		Timestamp: r.clock.Now().UTC(),
	})
}

func (r *Router) handleTeamVote(c *hub.Client, data []byte) {
	var msg TeamVoteMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" || msg.PageID == "" {
		return
	}

	r.mu.Lock()
	ts, ok := r.teams[msg.TeamID]
	if !ok || ts.members[c.UserID] == nil {
		r.mu.Unlock()
		r.sendError(c, "not a member of team "+msg.TeamID)
		return
	}

	page := ts.votes[msg.PageID]
	if page == nil {
		page = make(map[string]*ballot)
		ts.votes[msg.PageID] = page
	}
	if _, voted := page[c.UserID]; voted && !msg.AllowChange {
		r.mu.Unlock()
		r.sendError(c, ErrVoteLocked.Error())
		return
	}
	page[c.UserID] = &ballot{Choice: msg.Choice, CastAt: r.clock.Now().UTC()}
	r.mu.Unlock()

	// Rebroadcast verbatim; tallying is page logic, not transport logic.
	r.hub.Broadcast(TeamRoom(msg.TeamID), VoteCastMsg{
		Type:   "team_vote_cast",
		TeamID: msg.TeamID,
		PageID: msg.PageID,
		UserID: c.UserID,
		Choice: msg.Choice,
	})
}

func (r *Router) handleTeamReady(c *hub.Client, data []byte) {
	var msg TeamReadyMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.TeamID == "" {
		return
	}

	r.mu.Lock()
	ts, ok := r.teams[msg.TeamID]
	if !ok || ts.members[c.UserID] == nil {
		r.mu.Unlock()
		r.sendError(c, "not a member of team "+msg.TeamID)
		return
	}
	ts.members[c.UserID].Ready = msg.Ready
	r.mu.Unlock()

	r.hub.Broadcast(TeamRoom(msg.TeamID), ReadyUpdateMsg{
		Type:   "team_ready_update",
		TeamID: msg.TeamID,
		UserID: c.UserID,
		Ready:  msg.Ready,
	})
}

func (r *Router) handleMatchJoin(c *hub.Client, data []byte) {
	var msg MatchJoinMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.MatchID == "" {
		return
	}

	if err := r.matches.Join(msg.MatchID, c.UserID, c.Name); err != nil {
		r.sendError(c, err.Error())
		return
	}
	r.hub.Join(c, match.Room(msg.MatchID))

	// Current standings straight back to the joiner so the lobby renders
	// without a separate query.
	if ranking, err := r.matches.Ranking(msg.MatchID); err == nil {
		r.hub.Send(c, match.RankingMsg{Type: "match_ranking", MatchID: msg.MatchID, Ranking: ranking})
	}
}

func (r *Router) handleMatchStart(c *hub.Client, data []byte) {
	var msg MatchStartMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.MatchID == "" {
		return
	}
	if err := r.matches.Start(msg.MatchID, c.UserID); err != nil {
		r.sendError(c, err.Error())
	}
}

func (r *Router) handleMatchEnd(c *hub.Client, data []byte) {
	var msg MatchEndMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.MatchID == "" {
		return
	}
	if err := r.matches.End(msg.MatchID, c.UserID); err != nil {
		r.sendError(c, err.Error())
	}
}

func (r *Router) handleCountdownComplete(c *hub.Client, data []byte) {
	var msg MatchCountdownCompleteMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.MatchID == "" {
		return
	}
	// The server's own timer already performed the transition; a premature
	// claim gets rejected and nothing changes.
	if err := r.matches.VerifyCountdownComplete(msg.MatchID); err != nil {
		r.sendError(c, err.Error())
	}
}

func (r *Router) handleDeviceSubscribe(c *hub.Client, data []byte) {
	var msg DeviceSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.DeviceID == "" {
		return
	}
	r.hub.Join(c, DeviceRoom(msg.DeviceID))
}

func (r *Router) handleDeviceUnsubscribe(c *hub.Client, data []byte) {
	var msg DeviceUnsubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.DeviceID == "" {
		return
	}
	r.hub.Leave(c, DeviceRoom(msg.DeviceID))
}
