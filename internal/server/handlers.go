// HTTP handlers: the websocket upgrade, health check, and a small built-in
// test page speaking the event envelope protocol.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the connection and hands it to the hub. The
// origin allow-list is enforced inside the upgrader, so a disallowed origin
// never reaches the hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)

	// The hub launches the pump goroutines once it has recorded the client.
	client.hub.register <- client
}

// HealthHandler reports liveness in plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mingle realtime service is running!")
}

// TestPageHandler serves a minimal page for poking the realtime protocol by
// hand: handshake, join a room, send a message, watch events arrive.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Mingle Realtime Test</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 8px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; font-family: monospace; font-size: 12px; }
        input { padding: 4px; margin-right: 6px; }
        button { padding: 4px 12px; }
    </style>
</head>
<body>
    <h1>Mingle Realtime Test</h1>
    <div>
        <input id="email" placeholder="email" value="tester@example.com">
        <button onclick="connect()">Connect</button>
    </div>
    <div>
        <input id="room" placeholder="conversation id">
        <button onclick="join()">Join</button>
        <input id="text" placeholder="message">
        <button onclick="send()">Send</button>
    </div>
    <div id="log"></div>
    <script>
        let ws = null;
        const log = (line) => {
            const el = document.createElement('div');
            el.textContent = line;
            const box = document.getElementById('log');
            box.appendChild(el);
            box.scrollTop = box.scrollHeight;
        };
        const emit = (event, data) => ws && ws.send(JSON.stringify({event, data}));
        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => {
                log('connected');
                emit('online:user', {useremail: document.getElementById('email').value, userId: 'test'});
            };
            ws.onmessage = (e) => log('<< ' + e.data);
            ws.onclose = () => { log('closed'); ws = null; };
        }
        function join() { emit('join:room', document.getElementById('room').value); }
        function send() {
            const conversationId = document.getElementById('room').value;
            emit('send:message', {
                newMessage: {conversationId, body: document.getElementById('text').value},
                conversationUsers: {users: []}
            });
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		zap.L().Warn("error writing test page", zap.Error(err))
	}
}
