// Package router computes, for each inbound domain event, which connections
// must receive which outbound events, and applies the result through a
// caller-supplied send function.
//
// Recipient selection is a pure function (Plan) over the presence and room
// registries, kept separate from the dispatch side effect so it can be
// tested without a live transport. Dispatch is fire-and-forget: a send that
// fails because its target already disconnected is counted and swallowed,
// never retried — the durable store behind the HTTP API is the source of
// truth for anything that must not be lost.
package router

import (
	"sort"

	"github.com/minglehq/realtime/internal/protocol"
)

// Presence is the identity→connections view the router needs.
type Presence interface {
	ConnectionsFor(identity string) []string
}

// Rooms is the room→connections view the router needs.
type Rooms interface {
	MembersOf(roomID string) []string
}

// SendFunc delivers one outbound event to one connection. It reports false
// when the connection is gone or cannot accept the event.
type SendFunc func(connID, event string, payload any) bool

// Delivery is one outbound event with its deduplicated, sorted target set.
type Delivery struct {
	Event   string
	Payload any
	Targets []string
}

// Plan computes the deliveries for one inbound event. sender is the
// connection id the event arrived on; it is always excluded from the
// targets (the originating tab already knows what it did — other tabs of
// the same identity do receive the event). Events that only mutate
// registries (handshake, join, leave) yield no deliveries.
func Plan(ev protocol.Inbound, sender string, presence Presence, rooms Rooms) []Delivery {
	switch ev := ev.(type) {
	case protocol.NewConversation:
		targets := connectionsOf(presence, ev.Users, sender, nil)
		return deliveries(Delivery{
			Event:   protocol.EventNewConversation,
			Payload: ev.Conversation,
			Targets: targets,
		})

	case protocol.ExitRoom:
		targets := connectionsOf(presence, ev.ExistingUsers, sender, nil)
		return deliveries(Delivery{
			Event: protocol.EventExitUser,
			Payload: protocol.ExitUserPayload{
				ConversationID: ev.ConversationID,
				UserIDs:        ev.UserIDs,
			},
			Targets: targets,
		})

	case protocol.SendMessage:
		return planSendMessage(ev, sender, presence, rooms)

	case protocol.ReadMessages:
		targets := exclude(rooms.MembersOf(ev.ConversationID), sender, nil)
		return deliveries(Delivery{
			Event:   protocol.EventReadMessage,
			Payload: protocol.ReadMessagePayload{ConversationID: ev.ConversationID},
			Targets: targets,
		})

	case protocol.SeenMessage:
		targets := connectionsOf(presence, ev.Users, sender, nil)
		return deliveries(Delivery{
			Event: protocol.EventSeenUser,
			Payload: protocol.SeenUserPayload{
				ConversationID: ev.ConversationID,
				Seen:           ev.Seen,
				UserEmail:      ev.UserEmail,
			},
			Targets: targets,
		})

	default:
		// online:user, join:room, leave:room only mutate registries; the
		// lifecycle manager handles their side effects.
		return nil
	}
}

// planSendMessage unions two recipient sources: connections joined to the
// message's room get receive:message, and connections of conversation
// participants that are not joined (the room open in another tab) get
// receive:conversation. A connection qualifying via both paths receives the
// event exactly once, on the room path.
func planSendMessage(ev protocol.SendMessage, sender string, presence Presence, rooms Rooms) []Delivery {
	roomTargets := exclude(rooms.MembersOf(ev.ConversationID), sender, nil)

	seen := make(map[string]struct{}, len(roomTargets))
	for _, id := range roomTargets {
		seen[id] = struct{}{}
	}
	participantTargets := connectionsOf(presence, ev.ConversationUsers, sender, seen)

	return deliveries(
		Delivery{
			Event:   protocol.EventReceiveMessage,
			Payload: ev.NewMessage,
			Targets: roomTargets,
		},
		Delivery{
			Event:   protocol.EventReceiveConversation,
			Payload: ev.NewMessage,
			Targets: participantTargets,
		},
	)
}

// connectionsOf fans a user list out to every connection of every user,
// excluding sender and anything already in taken, deduplicated and sorted.
func connectionsOf(presence Presence, users []protocol.User, sender string, taken map[string]struct{}) []string {
	set := make(map[string]struct{})
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		for _, connID := range presence.ConnectionsFor(user.Email) {
			if connID == sender {
				continue
			}
			if _, dup := taken[connID]; dup {
				continue
			}
			set[connID] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

func exclude(connIDs []string, sender string, taken map[string]struct{}) []string {
	var out []string
	for _, id := range connIDs {
		if id == sender {
			continue
		}
		if _, dup := taken[id]; dup {
			continue
		}
		out = append(out, id)
	}
	return out
}

// deliveries drops empty-target entries so dispatch loops stay trivial.
func deliveries(ds ...Delivery) []Delivery {
	out := ds[:0]
	for _, d := range ds {
		if len(d.Targets) > 0 {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Router binds recipient planning to a concrete send function.
type Router struct {
	presence Presence
	rooms    Rooms
	send     SendFunc
}

// New returns a router dispatching through send.
func New(presence Presence, rooms Rooms, send SendFunc) *Router {
	return &Router{presence: presence, rooms: rooms, send: send}
}

// Route plans and dispatches one inbound event. It returns how many sends
// succeeded and how many targets were dropped (stale or unreachable).
func (r *Router) Route(sender string, ev protocol.Inbound) (delivered, dropped int) {
	for _, d := range Plan(ev, sender, r.presence, r.rooms) {
		for _, target := range d.Targets {
			if r.send(target, d.Event, d.Payload) {
				delivered++
			} else {
				dropped++
			}
		}
	}
	return delivered, dropped
}
