// Package testhelpers provides shared utilities for the realtime service's
// integration tests: HTTP assertions plus a small websocket client speaking
// the event envelope protocol.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minglehq/realtime/internal/protocol"
)

// CreateTestServer starts an httptest server around the given handler.
// Close it when done.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// MakeRequest executes an HTTP request with a short timeout and fails the
// test on transport errors.
func MakeRequest(t *testing.T, method, target string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, target, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	return resp
}

// AssertStatusCode fails the test when the response status differs from
// expected.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// WebSocketURL rewrites an httptest server URL into the ws:// endpoint.
func WebSocketURL(t *testing.T, serverURL string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

// DialRealtime opens a websocket connection with the given Origin header.
// Pass an empty origin to simulate a non-browser client.
func DialRealtime(t *testing.T, serverURL, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(WebSocketURL(t, serverURL), header)
	if err != nil {
		t.Fatalf("Failed to dial websocket (resp %v): %v", resp, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// EmitEvent sends one event envelope on the connection.
func EmitEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	frame, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("Failed to build %s frame: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// ReadEvent reads the next envelope from the connection.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("Undecodable frame %q: %v", frame, err)
	}
	return env
}

// WaitForEvent reads envelopes until one matches the expected event name,
// discarding interleaved broadcasts, and returns it.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) protocol.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s", event)
		}
		env := ReadEvent(t, conn, remaining)
		if env.Event == event {
			return env
		}
	}
}

// ExpectNoEvent fails the test if any envelope arrives within the window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, got %s", frame)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}
