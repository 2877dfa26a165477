package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/txmesh/signaling/internal/core"
	"github.com/txmesh/signaling/internal/protocol"
)

// fakeConn records every frame the hub enqueues. full simulates a
// backpressured connection whose sends fail.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("undecodable frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestHub() *Hub {
	return NewHub(prometheus.NewRegistry())
}

var sidSeq int

func connect(h *Hub) (*Session, *fakeConn) {
	sidSeq++
	conn := &fakeConn{}
	s := NewSession(core.SessionID(fmt.Sprintf("sid-%d", sidSeq)), conn)
	h.Register(s)
	return s, conn
}

func relay(t *testing.T, h *Hub, s *Session, raw string) {
	t.Helper()
	env, _, err := protocol.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("relay frame did not decode: %v", err)
	}
	h.Relay(s, env, core.Frame(raw))
}

func broadcast(t *testing.T, h *Hub, s *Session, tx string) {
	t.Helper()
	env := protocol.Envelope{Type: "transaction", Transaction: json.RawMessage(tx)}
	h.Broadcast(s, env)
}

func TestRegisterSendsWelcome(t *testing.T) {
	h := newTestHub()
	_, conn := connect(h)

	welcomes := conn.ofType(t, "welcome")
	if len(welcomes) != 1 {
		t.Fatalf("expected 1 welcome frame, got %d", len(welcomes))
	}
	if welcomes[0]["message"] == "" {
		t.Error("welcome frame has no message")
	}
}

func TestJoinRequiresRoomAndPeer(t *testing.T) {
	h := newTestHub()
	s, conn := connect(h)

	h.Join(s, "", "peer-a")
	h.Join(s, "room-1", "")

	if got := len(conn.ofType(t, "error")); got != 2 {
		t.Fatalf("expected 2 error frames, got %d", got)
	}
	if pid, rid := h.Binding(s); pid != "" || rid != "" {
		t.Errorf("session state mutated on invalid join: peer=%q room=%q", pid, rid)
	}
	if len(h.rooms) != 0 {
		t.Errorf("room created on invalid join")
	}
}

func TestJoinSnapshotAndNotification(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)

	h.Join(a, "room-1", "A")

	first := connA.ofType(t, "room-joined")
	if len(first) != 1 {
		t.Fatalf("expected 1 room-joined for A, got %d", len(first))
	}
	if peers := first[0]["peers"].([]any); len(peers) != 0 {
		t.Errorf("first joiner saw peers %v, want empty", peers)
	}

	h.Join(b, "room-1", "B")

	joined := connB.ofType(t, "room-joined")
	if len(joined) != 1 {
		t.Fatalf("expected 1 room-joined for B, got %d", len(joined))
	}
	peers := joined[0]["peers"].([]any)
	if len(peers) != 1 || peers[0] != "A" {
		t.Errorf("B's snapshot = %v, want [A]", peers)
	}

	notified := connA.ofType(t, "peer-joined")
	if len(notified) != 1 {
		t.Fatalf("expected 1 peer-joined for A, got %d", len(notified))
	}
	if notified[0]["peerId"] != "B" || notified[0]["roomId"] != "room-1" {
		t.Errorf("A's peer-joined = %v", notified[0])
	}
	if got := connB.ofType(t, "peer-joined"); len(got) != 0 {
		t.Errorf("joiner notified about itself: %v", got)
	}
}

func TestRejoinLeavesPreviousRoom(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, connB := connect(h)

	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")
	h.Join(a, "room-2", "A")

	if pid, rid := h.Binding(a); pid != "A" || rid != "room-2" {
		t.Errorf("binding after rejoin = %q/%q, want A/room-2", pid, rid)
	}
	left := connB.ofType(t, "peer-left")
	if len(left) != 1 || left[0]["peerId"] != "A" || left[0]["roomId"] != "room-1" {
		t.Errorf("B's peer-left = %v", left)
	}
	if members := h.rooms["room-1"]; len(members) != 1 {
		t.Errorf("room-1 membership = %d, want 1", len(members))
	}
	if _, in := h.rooms["room-1"][a]; in {
		t.Error("session still a member of the previous room")
	}
}

func TestLeaveIdempotent(t *testing.T) {
	h := newTestHub()
	s, conn := connect(h)

	h.Leave(s, "no-such-room")
	h.Leave(s, "no-such-room")

	if got := len(conn.ofType(t, "error")); got != 0 {
		t.Errorf("idempotent leave produced %d error frames", got)
	}
	if len(h.rooms) != 0 {
		t.Errorf("leave mutated the room registry")
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, _ := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")

	h.Leave(a, "room-1")
	if _, ok := h.rooms["room-1"]; !ok {
		t.Fatal("room deleted while still populated")
	}
	h.Leave(b, "room-1")
	if _, ok := h.rooms["room-1"]; ok {
		t.Error("empty room still present in the registry")
	}
	if len(h.peers) != 0 {
		t.Errorf("peer directory not empty after all members left: %v", h.peers)
	}
}

func TestLeaveClearsDirectoryAndNotifies(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, connB := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")

	h.Leave(a, "room-1")

	left := connB.ofType(t, "peer-left")
	if len(left) != 1 || left[0]["peerId"] != "A" {
		t.Fatalf("B's peer-left = %v", left)
	}
	if _, ok := h.peers["A"]; ok {
		t.Error("directory entry for A survived leave")
	}
	if pid, rid := h.Binding(a); pid != "" || rid != "" {
		t.Errorf("bindings not cleared: peer=%q room=%q", pid, rid)
	}
}

func TestTargetedRelay(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, connB := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")

	relay(t, h, a, `{"type":"offer","targetPeer":"B","roomId":"room-1","sdp":"v=0 fake-sdp"}`)

	got := connB.ofType(t, "offer")
	if len(got) != 1 {
		t.Fatalf("expected 1 offer at B, got %d", len(got))
	}
	frame := got[0]
	if frame["fromPeer"] != "A" {
		t.Errorf("fromPeer = %v, want A", frame["fromPeer"])
	}
	if frame["sdp"] != "v=0 fake-sdp" || frame["targetPeer"] != "B" || frame["roomId"] != "room-1" {
		t.Errorf("original fields not preserved: %v", frame)
	}
}

func TestRelayUnknownTarget(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")
	before := connB.count()

	relay(t, h, a, `{"type":"offer","targetPeer":"Z","roomId":"room-1"}`)

	errs := connA.ofType(t, "error")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error at sender, got %d", len(errs))
	}
	if msg, _ := errs[0]["message"].(string); msg == "" || !strings.Contains(msg, "Z") {
		t.Errorf("error does not name the target: %q", msg)
	}
	if connB.count() != before {
		t.Error("frame delivered despite unresolved target")
	}
}

func TestRelayRoomMismatch(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-2", "B")
	before := connB.count()

	relay(t, h, a, `{"type":"answer","targetPeer":"B","roomId":"room-1"}`)

	if got := len(connA.ofType(t, "error")); got != 1 {
		t.Fatalf("expected 1 error at sender, got %d", got)
	}
	if connB.count() != before {
		t.Error("frame delivered across rooms")
	}
}

func TestRelayRequiresTargetAndRoom(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	h.Join(a, "room-1", "A")

	relay(t, h, a, `{"type":"ice-candidate","roomId":"room-1"}`)
	relay(t, h, a, `{"type":"ice-candidate","targetPeer":"B"}`)

	if got := len(connA.ofType(t, "error")); got != 2 {
		t.Errorf("expected 2 validation errors, got %d", got)
	}
}

func TestBroadcastIncludesSender(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)
	c, connC := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")
	h.Join(c, "room-1", "C")

	broadcast(t, h, a, `{"id":"t1","amount":5}`)

	for name, conn := range map[string]*fakeConn{"A": connA, "B": connB, "C": connC} {
		got := conn.ofType(t, "transaction-broadcast")
		if len(got) != 1 {
			t.Fatalf("%s received %d broadcasts, want 1", name, len(got))
		}
		frame := got[0]
		if frame["fromPeer"] != "A" || frame["roomId"] != "room-1" {
			t.Errorf("%s broadcast envelope = %v", name, frame)
		}
		tx := frame["transaction"].(map[string]any)
		if tx["id"] != "t1" || tx["amount"] != float64(5) {
			t.Errorf("%s transaction payload altered: %v", name, tx)
		}
		if ts, ok := frame["timestamp"].(float64); !ok || ts <= 0 {
			t.Errorf("%s timestamp missing: %v", name, frame["timestamp"])
		}
	}
}

func TestBroadcastWithoutRoom(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)
	h.Join(b, "room-1", "B")
	before := connB.count()

	broadcast(t, h, a, `{"id":"t1"}`)

	errs := connA.ofType(t, "error")
	if len(errs) != 1 || errs[0]["message"] != "Not in a room" {
		t.Fatalf("expected error \"Not in a room\", got %v", errs)
	}
	if connB.count() != before {
		t.Error("broadcast occurred despite unbound sender")
	}
}

func TestDisconnectCleanup(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, connB := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")

	h.Disconnect(a)

	left := connB.ofType(t, "peer-left")
	if len(left) != 1 || left[0]["peerId"] != "A" || left[0]["roomId"] != "room-1" {
		t.Fatalf("B's peer-left = %v", left)
	}
	if _, ok := h.peers["A"]; ok {
		t.Error("directory entry for A survived disconnect")
	}

	h.Disconnect(b)
	if len(h.rooms) != 0 {
		t.Error("room survived after all members disconnected")
	}
	if len(h.sessions) != 0 {
		t.Error("session registry not empty")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	h.Disconnect(a)
	h.Disconnect(a)
	if len(h.sessions) != 0 {
		t.Error("session registry not empty after double disconnect")
	}
}

func TestPeerIDCollisionEvictsPriorSession(t *testing.T) {
	h := newTestHub()
	s1, conn1 := connect(h)
	s2, _ := connect(h)
	other, connOther := connect(h)
	h.Join(s1, "room-1", "X")
	h.Join(other, "room-1", "O")

	h.Join(s2, "room-2", "X")

	if cur := h.peers["X"]; cur != s2 {
		t.Fatal("directory does not point at the new session")
	}
	if pid, rid := h.Binding(s1); pid != "" || rid != "" {
		t.Errorf("evicted session still bound: peer=%q room=%q", pid, rid)
	}
	if _, in := h.rooms["room-1"][s1]; in {
		t.Error("evicted session still a room member")
	}
	if got := len(conn1.ofType(t, "error")); got != 1 {
		t.Errorf("evicted session got %d error frames, want 1", got)
	}
	left := connOther.ofType(t, "peer-left")
	if len(left) != 1 || left[0]["peerId"] != "X" {
		t.Errorf("room members not told about the eviction: %v", left)
	}
}

func TestSendFailureIsolation(t *testing.T) {
	h := newTestHub()
	a, connA := connect(h)
	b, connB := connect(h)
	c, connC := connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")
	h.Join(c, "room-1", "C")
	connB.mu.Lock()
	connB.full = true
	connB.mu.Unlock()
	before := connB.count()

	broadcast(t, h, a, `{"id":"t2"}`)

	if got := len(connA.ofType(t, "transaction-broadcast")); got != 1 {
		t.Errorf("A received %d broadcasts, want 1", got)
	}
	if got := len(connC.ofType(t, "transaction-broadcast")); got != 1 {
		t.Errorf("C received %d broadcasts, want 1", got)
	}
	if connB.count() != before {
		t.Error("backpressured connection still received a frame")
	}
}

func TestStatsSnapshot(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	b, _ := connect(h)
	_, _ = connect(h)
	h.Join(a, "room-1", "A")
	h.Join(b, "room-1", "B")

	st := h.Stats()
	if st.TotalConnections != 3 {
		t.Errorf("TotalConnections = %d, want 3", st.TotalConnections)
	}
	if st.TotalRooms != 1 || len(st.Rooms) != 1 {
		t.Fatalf("rooms snapshot = %+v", st)
	}
	room := st.Rooms[0]
	if room.RoomID != "room-1" || room.PeerCount != 2 {
		t.Errorf("room snapshot = %+v", room)
	}
	if len(room.Peers) != 2 || room.Peers[0] != "A" || room.Peers[1] != "B" {
		t.Errorf("peer list = %v", room.Peers)
	}
}

func TestHealthSnapshot(t *testing.T) {
	h := newTestHub()
	a, _ := connect(h)
	h.Join(a, "room-1", "A")

	hs := h.Health()
	if hs.Status != "healthy" {
		t.Errorf("status = %q", hs.Status)
	}
	if hs.Connections != 1 || hs.Rooms != 1 {
		t.Errorf("health counts = %+v", hs)
	}
	if hs.Timestamp <= 0 {
		t.Errorf("timestamp = %d", hs.Timestamp)
	}
}
