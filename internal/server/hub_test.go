package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/minglehq/realtime/internal/protocol"
)

// Lifecycle tests drive a private hub with transportless clients: a nil
// websocket connection means no pump goroutines are started, so frames can
// be pushed through the inbound channel and read back from each client's
// send channel directly.

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(func() {
		if err := h.Shutdown(time.Second); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})
	return h
}

func connect(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := NewClient(nil, h, "test")
	h.register <- c
	return c
}

func handshake(t *testing.T, h *Hub, c *Client, email string) {
	t.Helper()
	h.inbound <- inboundFrame{client: c, event: protocol.OnlineUser{UserEmail: email}}
}

func recvEvent(t *testing.T, c *Client, timeout time.Duration) protocol.Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatalf("send channel closed while waiting for event")
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("undecodable frame %q: %v", frame, err)
		}
		return env
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
	}
	return protocol.Envelope{}
}

func expectSilence(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if ok {
			t.Fatalf("expected no event, got %s", frame)
		}
	case <-time.After(wait):
	}
}

// TestHandshakeSnapshot verifies that a handshaking connection receives the
// full online snapshot, including identities registered moments earlier by
// other connections.
func TestHandshakeSnapshot(t *testing.T) {
	h := newTestHub(t)

	a1 := connect(t, h)
	handshake(t, h, a1, "a@example.com")

	env := recvEvent(t, a1, time.Second)
	if env.Event != protocol.EventOnlineUsers {
		t.Fatalf("expected %s, got %s", protocol.EventOnlineUsers, env.Event)
	}
	var snapshot []protocol.OnlineEntry
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		t.Fatalf("bad snapshot payload: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0].UserEmail != "a@example.com" {
		t.Fatalf("expected snapshot with just a@example.com, got %v", snapshot)
	}

	b1 := connect(t, h)
	handshake(t, h, b1, "b@example.com")

	// The earlier connection hears about the newcomer.
	env = recvEvent(t, a1, time.Second)
	if env.Event != protocol.EventRegisterUser {
		t.Fatalf("expected %s, got %s", protocol.EventRegisterUser, env.Event)
	}
	var identity string
	if err := json.Unmarshal(env.Data, &identity); err != nil || identity != "b@example.com" {
		t.Fatalf("expected register:user for b@example.com, got %s (err %v)", env.Data, err)
	}

	// The newcomer's snapshot includes both identities.
	env = recvEvent(t, b1, time.Second)
	if env.Event != protocol.EventOnlineUsers {
		t.Fatalf("expected %s, got %s", protocol.EventOnlineUsers, env.Event)
	}
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		t.Fatalf("bad snapshot payload: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 snapshot entries, got %v", snapshot)
	}
	if snapshot[0].UserEmail != "a@example.com" || snapshot[1].UserEmail != "b@example.com" {
		t.Fatalf("expected snapshot ordered by identity, got %v", snapshot)
	}
}

// TestMultiTabOfflineDetection covers the two-tab teardown sequence: closing
// one tab is silent, closing the last one broadcasts leave:user exactly once.
func TestMultiTabOfflineDetection(t *testing.T) {
	h := newTestHub(t)

	a1 := connect(t, h)
	handshake(t, h, a1, "a@example.com")
	recvEvent(t, a1, time.Second) // snapshot

	b1 := connect(t, h)
	handshake(t, h, b1, "b@example.com")
	recvEvent(t, b1, time.Second) // snapshot
	recvEvent(t, a1, time.Second) // register:user b

	b2 := connect(t, h)
	handshake(t, h, b2, "b@example.com")
	recvEvent(t, b2, time.Second) // snapshot
	recvEvent(t, a1, time.Second) // register:user b (second tab's handshake)
	recvEvent(t, b1, time.Second)

	h.inbound <- inboundFrame{client: b1, event: protocol.JoinRoom{Room: "conv-7"}}
	h.inbound <- inboundFrame{client: b2, event: protocol.JoinRoom{Room: "conv-7"}}

	// First tab closes: B is still online through b2, so nobody is told.
	h.unregister <- b1
	expectSilence(t, a1, 100*time.Millisecond)

	if members := h.rooms.MembersOf("conv-7"); len(members) != 1 || members[0] != b2.id {
		t.Fatalf("expected only b2 to remain in the room, got %v", members)
	}

	// Last tab closes: exactly one leave:user broadcast.
	h.unregister <- b2
	env := recvEvent(t, a1, time.Second)
	if env.Event != protocol.EventLeaveUser {
		t.Fatalf("expected %s, got %s", protocol.EventLeaveUser, env.Event)
	}
	var identity string
	if err := json.Unmarshal(env.Data, &identity); err != nil || identity != "b@example.com" {
		t.Fatalf("expected leave:user for b@example.com, got %s", env.Data)
	}
	expectSilence(t, a1, 100*time.Millisecond)
}

// TestUnauthenticatedDisconnect verifies that tearing down a connection that
// never completed the handshake produces no presence side effects.
func TestUnauthenticatedDisconnect(t *testing.T) {
	h := newTestHub(t)

	a1 := connect(t, h)
	handshake(t, h, a1, "a@example.com")
	recvEvent(t, a1, time.Second) // snapshot

	ghost := connect(t, h)
	h.unregister <- ghost

	expectSilence(t, a1, 100*time.Millisecond)
	if count := h.presence.IdentityCount(); count != 1 {
		t.Fatalf("expected 1 online identity, got %d", count)
	}
}

// TestRoutedMessageDelivery runs the canonical fan-out scenario through the
// hub: sender excluded, room members and presence-only tabs each delivered
// exactly once.
func TestRoutedMessageDelivery(t *testing.T) {
	h := newTestHub(t)

	a1 := connect(t, h)
	handshake(t, h, a1, "a@example.com")
	recvEvent(t, a1, time.Second)

	b1 := connect(t, h)
	handshake(t, h, b1, "b@example.com")
	recvEvent(t, b1, time.Second)
	recvEvent(t, a1, time.Second)

	b2 := connect(t, h)
	handshake(t, h, b2, "b@example.com")
	recvEvent(t, b2, time.Second)
	recvEvent(t, a1, time.Second)
	recvEvent(t, b1, time.Second)

	h.inbound <- inboundFrame{client: a1, event: protocol.JoinRoom{Room: "conv-7"}}
	h.inbound <- inboundFrame{client: b1, event: protocol.JoinRoom{Room: "conv-7"}}

	msg, err := protocol.Decode([]byte(`{"event":"send:message","data":{
		"newMessage":{"conversationId":"conv-7","body":"hi"},
		"conversationUsers":{"users":[{"email":"a@example.com"},{"email":"b@example.com"}]}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	h.inbound <- inboundFrame{client: a1, event: msg}

	env := recvEvent(t, b1, time.Second)
	if env.Event != protocol.EventReceiveMessage {
		t.Fatalf("expected %s for the joined tab, got %s", protocol.EventReceiveMessage, env.Event)
	}

	env = recvEvent(t, b2, time.Second)
	if env.Event != protocol.EventReceiveConversation {
		t.Fatalf("expected %s for the unjoined tab, got %s", protocol.EventReceiveConversation, env.Event)
	}

	// Exactly once each; the sender hears nothing.
	expectSilence(t, a1, 100*time.Millisecond)
	expectSilence(t, b1, 100*time.Millisecond)
	expectSilence(t, b2, 100*time.Millisecond)
}

// TestLeaveRoomStopsDelivery verifies the explicit leave path.
func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := newTestHub(t)

	a1 := connect(t, h)
	handshake(t, h, a1, "a@example.com")
	recvEvent(t, a1, time.Second)

	b1 := connect(t, h)
	handshake(t, h, b1, "b@example.com")
	recvEvent(t, b1, time.Second)
	recvEvent(t, a1, time.Second)

	h.inbound <- inboundFrame{client: a1, event: protocol.JoinRoom{Room: "conv-7"}}
	h.inbound <- inboundFrame{client: b1, event: protocol.JoinRoom{Room: "conv-7"}}
	h.inbound <- inboundFrame{client: b1, event: protocol.LeaveRoom{Room: "conv-7"}}

	h.inbound <- inboundFrame{client: a1, event: protocol.ReadMessages{ConversationID: "conv-7"}}

	// b1 left the room, so the read notice reaches nobody.
	expectSilence(t, b1, 100*time.Millisecond)
}
