package session

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arenalink/arena-core/internal/hub"
	"github.com/arenalink/arena-core/internal/match"
)

// fakeHub records room membership, broadcasts and targeted sends so the
// router can be exercised without live connections.
type fakeHub struct {
	mu         sync.Mutex
	rooms      map[string]map[*hub.Client]struct{}
	broadcasts []recorded
	sends      []targeted
}

type recorded struct {
	room string
	msg  any
}

type targeted struct {
	c   *hub.Client
	msg any
}

func newFakeHub() *fakeHub {
	return &fakeHub{rooms: make(map[string]map[*hub.Client]struct{})}
}

func (f *fakeHub) Join(c *hub.Client, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[room] == nil {
		f.rooms[room] = make(map[*hub.Client]struct{})
	}
	f.rooms[room][c] = struct{}{}
}

func (f *fakeHub) Leave(c *hub.Client, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[room], c)
}

func (f *fakeHub) Broadcast(room string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, recorded{room: room, msg: v})
}

func (f *fakeHub) Send(c *hub.Client, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, targeted{c: c, msg: v})
	return true
}

func (f *fakeHub) inRoom(c *hub.Client, room string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rooms[room][c]
	return ok
}

func (f *fakeHub) lastBroadcast(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.broadcasts) == 0 {
		t.Fatal("no broadcasts recorded")
	}
	return f.broadcasts[len(f.broadcasts)-1]
}

func (f *fakeHub) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

func (f *fakeHub) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestRouter(t *testing.T) (*Router, *fakeHub, *match.Manager) {
	t.Helper()
	fh := newFakeHub()
	matches := match.NewManager(fh)
	r := NewRouter(fh, matches)
	return r, fh, matches
}

func newTestClient(userID, name string) *hub.Client {
	return &hub.Client{ConnID: userID + "-conn", UserID: userID, Name: name}
}

func raw(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func join(t *testing.T, r *Router, c *hub.Client, teamID string) {
	t.Helper()
	r.HandleMessage(c, []byte(`{"type":"team_join","team_id":"`+teamID+`"}`))
}

func TestTeamJoin_BroadcastsRosterToWholeRoom(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")

	join(t, r, alice, "blue")

	if !fh.inRoom(alice, "team:blue") {
		t.Fatal("joiner not in team room")
	}
	msg, ok := fh.lastBroadcast(t).msg.(MemberJoinedMsg)
	if !ok {
		t.Fatalf("broadcast = %T, want MemberJoinedMsg", fh.lastBroadcast(t).msg)
	}
	if msg.UserID != "u1" || msg.UserName != "Alice" {
		t.Errorf("joined notice = %+v", msg)
	}
	if len(msg.Members) != 1 || msg.Members[0].UserID != "u1" {
		t.Errorf("roster = %+v, want just u1", msg.Members)
	}
}

func TestTeamJoin_Idempotent(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")

	join(t, r, alice, "blue")
	join(t, r, alice, "blue")

	// Membership stays single even though the notice may repeat.
	msg := fh.lastBroadcast(t).msg.(MemberJoinedMsg)
	if len(msg.Members) != 1 {
		t.Errorf("roster has %d entries after double join, want 1", len(msg.Members))
	}
}

func TestTeamJoin_RelayHandoffToOlderConnection(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	oldConn := newTestClient("u1", "Alice")
	newConn := &hub.Client{ConnID: "u1-conn-2", UserID: "u1", Name: "Alice"}

	join(t, r, oldConn, "blue")
	join(t, r, newConn, "blue")

	fh.mu.Lock()
	defer fh.mu.Unlock()
	found := false
	for _, s := range fh.sends {
		if m, ok := s.msg.(RelayHandoffMsg); ok {
			found = true
			if s.c != oldConn {
				t.Error("relay_handoff sent to the new connection, want the old one")
			}
			if m.UserID != "u1" || m.TeamID != "blue" {
				t.Errorf("relay_handoff = %+v", m)
			}
		}
	}
	if !found {
		t.Fatal("no relay_handoff sent on reconnect")
	}
}

func TestStaleConnectionClose_KeepsPresence(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	oldConn := newTestClient("u1", "Alice")
	newConn := &hub.Client{ConnID: "u1-conn-2", UserID: "u1", Name: "Alice"}

	join(t, r, oldConn, "blue")
	join(t, r, newConn, "blue")
	before := fh.broadcastCount()

	// The superseded connection dies; the user's presence survives on the
	// newer connection and no member_left goes out.
	r.HandleClose(oldConn)

	fh.mu.Lock()
	for _, b := range fh.broadcasts[before:] {
		if _, ok := b.msg.(MemberLeftMsg); ok {
			t.Error("member_left broadcast for a superseded connection")
		}
	}
	fh.mu.Unlock()

	// The surviving connection still chats as a member.
	r.HandleMessage(newConn, []byte(`{"type":"team_chat","team_id":"blue","message":"hi"}`))
	if _, ok := fh.lastBroadcast(t).msg.(ChatMsg); !ok {
		t.Error("chat rejected after stale connection closed")
	}
}

func TestTeamLeave_BroadcastsAndClearsPresence(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")
	bob := newTestClient("u2", "Bob")

	join(t, r, alice, "blue")
	join(t, r, bob, "blue")

	r.HandleMessage(alice, []byte(`{"type":"team_leave","team_id":"blue"}`))

	msg, ok := fh.lastBroadcast(t).msg.(MemberLeftMsg)
	if !ok || msg.UserID != "u1" {
		t.Fatalf("broadcast = %+v, want member_left for u1", fh.lastBroadcast(t).msg)
	}
	if fh.inRoom(alice, "team:blue") {
		t.Error("leaver still in room")
	}

	// Rejoining shows a roster without stale state.
	join(t, r, alice, "blue")
	joined := fh.lastBroadcast(t).msg.(MemberJoinedMsg)
	if len(joined.Members) != 2 {
		t.Errorf("roster = %+v, want 2 members", joined.Members)
	}
}

func TestConnectionClose_BroadcastsMemberLeft(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")

	join(t, r, alice, "blue")
	join(t, r, alice, "red")

	r.HandleClose(alice)

	var left []string
	fh.mu.Lock()
	for _, b := range fh.broadcasts {
		if m, ok := b.msg.(MemberLeftMsg); ok {
			left = append(left, m.TeamID)
		}
	}
	fh.mu.Unlock()
	if len(left) != 2 {
		t.Errorf("member_left for teams %v, want both blue and red", left)
	}
}

func TestTeamChat_NonMemberGetsErrorOnly(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	stranger := newTestClient("u9", "Mallory")

	r.HandleMessage(stranger, []byte(`{"type":"team_chat","team_id":"blue","message":"hi"}`))

	if fh.broadcastCount() != 0 {
		t.Error("non-member chat was broadcast")
	}
	if fh.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1 error to sender", fh.sendCount())
	}
	if _, ok := fh.sends[0].msg.(ErrorMsg); !ok {
		t.Errorf("send = %T, want ErrorMsg", fh.sends[0].msg)
	}
}

func TestTeamLocation_Broadcasts(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")
	join(t, r, alice, "blue")

	r.HandleMessage(alice, raw(t, map[string]any{
		"type": "team_location", "team_id": "blue",
		"latitude": 51.5, "longitude": -0.12, "accuracy": 5.0,
	}))

	msg, ok := fh.lastBroadcast(t).msg.(LocationMsg)
	if !ok {
		t.Fatalf("broadcast = %T, want LocationMsg", fh.lastBroadcast(t).msg)
	}
	if msg.Latitude != 51.5 || msg.Longitude != -0.12 || msg.UserID != "u1" {
		t.Errorf("location = %+v", msg)
	}
}

func TestTeamVote_RepeatWithoutAllowChangeRejected(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")
	join(t, r, alice, "blue")

	r.HandleMessage(alice, []byte(`{"type":"team_vote","team_id":"blue","page_id":"q1","choice":"a"}`))
	if msg := fh.lastBroadcast(t).msg.(VoteCastMsg); msg.Choice != "a" {
		t.Fatalf("first vote broadcast = %+v", msg)
	}
	before := fh.broadcastCount()

	// Repeat without allow_change: error to sender, no broadcast.
	r.HandleMessage(alice, []byte(`{"type":"team_vote","team_id":"blue","page_id":"q1","choice":"b"}`))
	if fh.broadcastCount() != before {
		t.Error("locked vote was broadcast")
	}
	errMsg, ok := fh.sends[len(fh.sends)-1].msg.(ErrorMsg)
	if !ok || !strings.Contains(errMsg.Message, "vote") {
		t.Errorf("expected vote-locked error, got %+v", fh.sends[len(fh.sends)-1].msg)
	}

	// Repeat with allow_change: replaced and rebroadcast.
	r.HandleMessage(alice, []byte(`{"type":"team_vote","team_id":"blue","page_id":"q1","choice":"b","allow_change":true}`))
	if msg := fh.lastBroadcast(t).msg.(VoteCastMsg); msg.Choice != "b" {
		t.Errorf("changed vote broadcast = %+v", msg)
	}
}

func TestTeamVote_DifferentPagesIndependent(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")
	join(t, r, alice, "blue")

	r.HandleMessage(alice, []byte(`{"type":"team_vote","team_id":"blue","page_id":"q1","choice":"a"}`))
	r.HandleMessage(alice, []byte(`{"type":"team_vote","team_id":"blue","page_id":"q2","choice":"b"}`))

	if msg := fh.lastBroadcast(t).msg.(VoteCastMsg); msg.PageID != "q2" {
		t.Errorf("second page vote blocked: %+v", msg)
	}
}

func TestTeamReady_Broadcasts(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")
	join(t, r, alice, "blue")

	r.HandleMessage(alice, []byte(`{"type":"team_ready","team_id":"blue","ready":true}`))

	msg, ok := fh.lastBroadcast(t).msg.(ReadyUpdateMsg)
	if !ok || !msg.Ready || msg.UserID != "u1" {
		t.Errorf("ready broadcast = %+v", fh.lastBroadcast(t).msg)
	}

	// The flag shows up in the next roster.
	bob := newTestClient("u2", "Bob")
	join(t, r, bob, "blue")
	roster := fh.lastBroadcast(t).msg.(MemberJoinedMsg).Members
	for _, m := range roster {
		if m.UserID == "u1" && !m.Ready {
			t.Error("roster lost the ready flag")
		}
	}
}

func TestMalformedMessages_DroppedSilently(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")

	frames := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{}`),
		[]byte(`{"type":""}`),
		[]byte(`{"type":"team_join"}`),
		[]byte(`{"type":"no_such_type","x":1}`),
		[]byte(`{"type":"team_vote","team_id":"blue"}`),
	}
	for _, f := range frames {
		r.HandleMessage(alice, f)
	}

	if fh.broadcastCount() != 0 || fh.sendCount() != 0 {
		t.Errorf("malformed frames produced traffic: %d broadcasts, %d sends",
			fh.broadcastCount(), fh.sendCount())
	}
}

func TestDeviceSubscribe_JoinsAndLeavesFeed(t *testing.T) {
	r, fh, _ := newTestRouter(t)
	alice := newTestClient("u1", "Alice")

	r.HandleMessage(alice, []byte(`{"type":"device_subscribe","device_id":"target-07"}`))
	if !fh.inRoom(alice, "device:target-07") {
		t.Fatal("not joined to device feed")
	}

	r.HandleMessage(alice, []byte(`{"type":"device_unsubscribe","device_id":"target-07"}`))
	if fh.inRoom(alice, "device:target-07") {
		t.Error("still in device feed after unsubscribe")
	}
}

// waitForState polls until the match reaches the wanted state. The
// countdown transition runs on its own goroutine even at zero seconds.
func waitForState(t *testing.T, m *match.Manager, id string, want match.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, err := m.State(id); err == nil && s == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("match never reached state %q", want)
}

func TestMatchFlow_JoinStartEnd(t *testing.T) {
	r, fh, matches := newTestRouter(t)
	creator := newTestClient("u1", "Alice")
	player := newTestClient("u2", "Bob")

	info := matches.Create("u1", "finals", 0, 0)

	r.HandleMessage(player, raw(t, map[string]any{"type": "match_join", "match_id": info.ID}))
	if !fh.inRoom(player, match.Room(info.ID)) {
		t.Fatal("joiner not in match room")
	}
	// Joiner gets the current (empty) standings directly.
	last := fh.sends[len(fh.sends)-1]
	if rk, ok := last.msg.(match.RankingMsg); !ok || last.c != player {
		t.Fatalf("expected ranking sent to joiner, got %+v", last.msg)
	} else if len(rk.Ranking) != 1 {
		t.Errorf("ranking = %+v, want the joined player", rk.Ranking)
	}

	// Start by a non-creator is rejected to the sender only.
	before := fh.sendCount()
	r.HandleMessage(player, raw(t, map[string]any{"type": "match_start", "match_id": info.ID}))
	if fh.sendCount() != before+1 {
		t.Fatal("no error sent for non-creator start")
	}
	if _, ok := fh.sends[len(fh.sends)-1].msg.(ErrorMsg); !ok {
		t.Errorf("send = %T, want ErrorMsg", fh.sends[len(fh.sends)-1].msg)
	}

	// Premature countdown-complete claim is rejected.
	r.HandleMessage(player, raw(t, map[string]any{"type": "match_countdown_complete", "match_id": info.ID}))
	if _, ok := fh.sends[len(fh.sends)-1].msg.(ErrorMsg); !ok {
		t.Error("premature countdown_complete not rejected")
	}

	// Creator starts; zero countdown goes straight to playing.
	r.HandleMessage(creator, raw(t, map[string]any{"type": "match_start", "match_id": info.ID}))
	waitForState(t, matches, info.ID, match.StatePlaying)

	r.HandleMessage(creator, raw(t, map[string]any{"type": "match_end", "match_id": info.ID}))
	state, err := matches.State(info.ID)
	if err != nil || state != match.StateFinished {
		t.Errorf("state = %q err = %v, want finished", state, err)
	}
}
