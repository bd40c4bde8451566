package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pairchat/internal/models"
)

func testConn(userID uint, scope Scope) *Conn {
	return newConn(nil, userID, scope)
}

func drain(c *Conn) []Event {
	var out []Event
	for {
		select {
		case b := <-c.send:
			var ev Event
			_ = json.Unmarshal(b, &ev)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	a := testConn(1, LobbyScope{})
	b := testConn(2, RoomScope{RoomID: 1})

	r.Add(a)
	r.Add(b)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	r.Remove(a)
	r.Remove(a)
	if r.Len() != 1 {
		t.Fatalf("Len() after double remove = %d, want 1", r.Len())
	}
}

func TestRegistry_RoomPeersExcludesOrigin(t *testing.T) {
	r := NewRegistry()
	origin := testConn(1, RoomScope{RoomID: 7})
	peer := testConn(2, RoomScope{RoomID: 7})
	otherRoom := testConn(2, RoomScope{RoomID: 8})
	lobby := testConn(2, LobbyScope{})
	for _, c := range []*Conn{origin, peer, otherRoom, lobby} {
		r.Add(c)
	}

	n := r.Broadcast(Event{Type: EventNewMessage}, RoomPeers(7, origin))
	if n != 1 {
		t.Fatalf("Broadcast() = %d, want 1", n)
	}
	if got := drain(peer); len(got) != 1 || got[0].Type != EventNewMessage {
		t.Errorf("peer events = %+v", got)
	}
	for name, c := range map[string]*Conn{"origin": origin, "other room": otherRoom, "lobby": lobby} {
		if got := drain(c); len(got) != 0 {
			t.Errorf("%s received %+v", name, got)
		}
	}
}

func TestRegistry_LobbyParticipants(t *testing.T) {
	r := NewRegistry()
	room := &models.Room{ID: 3, User1ID: 1, User2ID: 2}

	u1 := testConn(1, LobbyScope{})
	u2a := testConn(2, LobbyScope{})
	u2b := testConn(2, LobbyScope{})
	outsider := testConn(9, LobbyScope{})
	inRoom := testConn(1, RoomScope{RoomID: 3})
	for _, c := range []*Conn{u1, u2a, u2b, outsider, inRoom} {
		r.Add(c)
	}

	if n := r.Broadcast(Event{Type: EventRoomUpdate}, LobbyParticipants(room)); n != 3 {
		t.Fatalf("Broadcast() = %d, want 3", n)
	}
	if len(drain(outsider)) != 0 {
		t.Error("outsider received a room update")
	}
	if len(drain(inRoom)) != 0 {
		t.Error("room-scoped connection received a lobby update")
	}
}

func TestRegistry_FullBufferIsSkipped(t *testing.T) {
	r := NewRegistry()
	slow := testConn(1, RoomScope{RoomID: 1})
	fast := testConn(2, RoomScope{RoomID: 1})
	r.Add(slow)
	r.Add(fast)

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte("{}")
	}
	n := r.Broadcast(Event{Type: EventNewMessage}, RoomPeers(1, nil))
	if n != 1 {
		t.Fatalf("Broadcast() = %d, want 1", n)
	}
	if len(drain(fast)) != 1 {
		t.Error("fast connection missed the event")
	}
}

func TestConn_EnqueueAfterClose(t *testing.T) {
	c := testConn(1, LobbyScope{})
	c.Close()
	c.Close()
	if c.Enqueue([]byte("x")) {
		t.Fatal("Enqueue() succeeded on a closed connection")
	}
}

func TestScopeString(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
		kind  string
	}{
		{RoomScope{RoomID: 12}, "room:12", "room"},
		{LobbyScope{}, "lobby", "lobby"},
		{nil, "", "none"},
	}
	for _, tt := range tests {
		if tt.scope != nil && tt.scope.String() != tt.want {
			t.Errorf("String() = %q, want %q", tt.scope.String(), tt.want)
		}
		if got := scopeKind(tt.scope); got != tt.kind {
			t.Errorf("scopeKind() = %q, want %q", got, tt.kind)
		}
	}
}

func TestRoomLocks_SerializeAndRelease(t *testing.T) {
	l := newRoomLocks()
	var (
		mu     sync.Mutex
		active int
		peak   int
		wg     sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(5)
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("peak concurrent holders = %d, want 1", peak)
	}
	if l.size() != 0 {
		t.Fatalf("size() = %d, want 0 after release", l.size())
	}

	// 不同房间互不阻塞
	unlockA := l.lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := l.lock(2)
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on room 2 blocked by room 1")
	}
	unlockA()
}
