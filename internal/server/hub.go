// The hub is the connection lifecycle manager: it owns every live client,
// serializes all registry mutations through a single run loop, and drives
// the event router.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minglehq/realtime/internal/presence"
	"github.com/minglehq/realtime/internal/protocol"
	"github.com/minglehq/realtime/internal/rooms"
	"github.com/minglehq/realtime/internal/router"
)

// inboundFrame pairs a decoded inbound event with the client it arrived on.
type inboundFrame struct {
	client *Client
	event  protocol.Inbound
}

// Hub tracks live connections and routes inbound events to the presence
// registry, the room membership index, and the event router. All state
// transitions flow through the Run loop, so each inbound event is handled
// to completion before the next one.
type Hub struct {
	presence *presence.Registry
	rooms    *rooms.Membership
	router   *router.Router

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub with empty registries, ready to accept connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		presence:   presence.NewRegistry(),
		rooms:      rooms.NewMembership(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.router = router.New(h.presence, h.rooms, h.sendTo)
	return h
}

var hub = NewHub()

// GetHub returns the process-wide hub instance for shutdown coordination.
func GetHub() *Hub {
	return hub
}

// StartHub starts the process-wide hub's run loop. Call before serving.
func StartHub() {
	go hub.Run()
	zap.L().Info("hub started")
}

// Run processes registrations, teardowns, and inbound events until the hub
// is shut down. Run it in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				zap.L().Warn("nil client registration skipped")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.teardown(client)

		case frame := <-h.inbound:
			h.handleFrame(frame)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	count := len(h.clients)
	h.mutex.Unlock()

	connectedClients.Set(float64(count))
	zap.L().Info("client connected",
		zap.String("conn", client.id),
		zap.String("addr", client.addr),
		zap.Int("total", count))

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// teardown removes the client from every registry. A connection that never
// completed the online handshake has no presence entry, so its removal
// produces no offline broadcast.
func (h *Hub) teardown(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()
	close(client.send)

	connectedClients.Set(float64(count))

	left := h.rooms.LeaveAll(client.id)
	identity, last, registered := h.presence.Deregister(client.id)
	if registered {
		onlineIdentities.Set(float64(h.presence.IdentityCount()))
		if last {
			h.broadcastExcept(client.id, protocol.EventLeaveUser, identity)
		}
	}

	zap.L().Info("client disconnected",
		zap.String("conn", client.id),
		zap.String("identity", identity),
		zap.Strings("rooms", left),
		zap.Bool("last_connection", registered && last),
		zap.Int("total", count))
}

func (h *Hub) handleFrame(frame inboundFrame) {
	inboundEvents.WithLabelValues(frame.event.Name()).Inc()

	switch ev := frame.event.(type) {
	case protocol.OnlineUser:
		h.handleHandshake(frame.client, ev)

	case protocol.JoinRoom:
		h.rooms.Join(ev.Room, frame.client.id)

	case protocol.LeaveRoom:
		h.rooms.Leave(ev.Room, frame.client.id)

	default:
		delivered, dropped := h.router.Route(frame.client.id, frame.event)
		eventDeliveries.Add(float64(delivered))
		droppedDeliveries.Add(float64(dropped))
	}
}

// handleHandshake registers the connection's identity, announces it to
// everyone else, and replies with the current online snapshot so the new
// client can render the online-user list without waiting for more events.
func (h *Hub) handleHandshake(client *Client, ev protocol.OnlineUser) {
	client.identity = ev.UserEmail
	h.presence.Register(ev.UserEmail, client.id)
	onlineIdentities.Set(float64(h.presence.IdentityCount()))

	h.broadcastExcept(client.id, protocol.EventRegisterUser, ev.UserEmail)

	entries := h.presence.Snapshot()
	online := make([]protocol.OnlineEntry, 0, len(entries))
	for _, entry := range entries {
		online = append(online, protocol.OnlineEntry{
			UserEmail:    entry.Identity,
			ConnectionID: entry.ConnID,
		})
	}
	h.sendTo(client.id, protocol.EventOnlineUsers, online)
}

// sendTo delivers one event to one connection. Delivery to a connection
// that is already gone, or whose send buffer is full, reports false; the
// caller treats that as a swallowed stale-target condition, not an error.
func (h *Hub) sendTo(connID, event string, payload any) bool {
	frame, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		zap.L().Error("failed to encode outbound event",
			zap.String("event", event), zap.Error(err))
		return false
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[connID]
	if !ok || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// broadcastExcept pushes an event to every live connection except one,
// typically the connection whose action triggered the broadcast.
func (h *Hub) broadcastExcept(exceptID, event string, payload any) {
	h.mutex.RLock()
	targets := make([]string, 0, len(h.clients))
	for id := range h.clients {
		if id != exceptID {
			targets = append(targets, id)
		}
	}
	h.mutex.RUnlock()

	for _, id := range targets {
		if h.sendTo(id, event, payload) {
			eventDeliveries.Inc()
		} else {
			droppedDeliveries.Inc()
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				zap.L().Warn("error closing client connection",
					zap.String("conn", client.id), zap.Error(err))
			}
		}
	}

	zap.L().Info("closed all client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the run loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	zap.L().Info("hub shutting down")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		zap.L().Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		zap.L().Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
