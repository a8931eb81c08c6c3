package hub

import (
	"encoding/json"
	"testing"
)

func newTestClient(h *Hub, userID, name string) *Client {
	c := h.NewClient(nil, userID, name)
	h.Register(c)
	return c
}

func recvJSON(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshalling queued frame: %v", err)
		}
		return msg
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestBroadcast_RoomScoped(t *testing.T) {
	h := New(8)
	a := newTestClient(h, "u1", "Alice")
	b := newTestClient(h, "u2", "Bob")
	outsider := newTestClient(h, "u3", "Cleo")

	h.Join(a, "team:blue")
	h.Join(b, "team:blue")
	h.Join(outsider, "team:red")

	h.Broadcast("team:blue", map[string]string{"type": "team_chat", "message": "go"})

	for _, c := range []*Client{a, b} {
		msg := recvJSON(t, c)
		if msg["type"] != "team_chat" {
			t.Errorf("type = %v, want team_chat", msg["type"])
		}
	}

	select {
	case <-outsider.send:
		t.Error("outsider received room-scoped broadcast")
	default:
	}
}

func TestBroadcast_DropsFullClient(t *testing.T) {
	h := New(1)
	slow := newTestClient(h, "u1", "Slow")
	fast := newTestClient(h, "u2", "Fast")
	h.Join(slow, "team:blue")
	h.Join(fast, "team:blue")

	// Fill the slow client's queue.
	h.Broadcast("team:blue", map[string]int{"n": 1})
	<-fast.send

	// Second broadcast overflows the slow client; the fast one still
	// receives and the slow one is unregistered.
	h.Broadcast("team:blue", map[string]int{"n": 2})

	if got := recvJSON(t, fast); got["n"] != float64(2) {
		t.Errorf("fast client got %v, want n=2", got)
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1 after dropping slow client", h.ClientCount())
	}
	if h.InRoom(slow, "team:blue") {
		t.Error("dropped client still in room")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	h := New(8)
	c := newTestClient(h, "u1", "Alice")
	h.Join(c, "team:blue")
	h.Join(c, "match:m1")

	h.Unregister(c)
	h.Unregister(c) // must not panic on double close

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
	if h.RoomSize("team:blue") != 0 || h.RoomSize("match:m1") != 0 {
		t.Error("unregister did not remove all room memberships")
	}
}

func TestJoin_RequiresRegistration(t *testing.T) {
	h := New(8)
	c := h.NewClient(nil, "u1", "Alice") // never registered

	h.Join(c, "team:blue")
	if h.RoomSize("team:blue") != 0 {
		t.Error("unregistered client joined a room")
	}
}

func TestJoinLeave(t *testing.T) {
	h := New(8)
	c := newTestClient(h, "u1", "Alice")

	h.Join(c, "team:blue")
	h.Join(c, "team:blue") // idempotent
	if h.RoomSize("team:blue") != 1 {
		t.Errorf("RoomSize = %d, want 1", h.RoomSize("team:blue"))
	}

	h.Leave(c, "team:blue")
	if h.RoomSize("team:blue") != 0 {
		t.Errorf("RoomSize = %d after leave, want 0", h.RoomSize("team:blue"))
	}

	h.Leave(c, "team:blue") // leaving again is a no-op
}

func TestSend_ToClosedClient(t *testing.T) {
	h := New(8)
	c := newTestClient(h, "u1", "Alice")
	h.Unregister(c)

	if h.Send(c, map[string]string{"type": "error"}) {
		t.Error("Send to unregistered client reported success")
	}
}
