// Package protocol defines the wire contract of the realtime service: the
// JSON frame envelope, the closed set of inbound event types, and the
// outbound event names and payloads.
//
// Every frame on the wire is an envelope of the form
//
//	{"event": "send:message", "data": {...}}
//
// Decode turns a raw frame into exactly one of the Inbound variants,
// validating the fields the router needs. A frame that fails validation is
// rejected here and dropped by the caller; it never reaches the router and
// never crashes the connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names accepted from clients.
const (
	EventOnlineUser      = "online:user"
	EventJoinRoom        = "join:room"
	EventLeaveRoom       = "leave:room"
	EventExitRoom        = "exit:room"
	EventNewConversation = "conversation:new"
	EventSendMessage     = "send:message"
	EventReadMessages    = "read:messages"
	EventSeenMessage     = "seen:message"
)

// Outbound event names pushed to clients.
const (
	EventRegisterUser        = "register:user"
	EventOnlineUsers         = "get:onlineUsers"
	EventExitUser            = "exit:user"
	EventReceiveMessage      = "receive:message"
	EventReceiveConversation = "receive:conversation"
	EventReadMessage         = "read:message"
	EventSeenUser            = "seen:user"
	EventLeaveUser           = "leave:user"
)

// ErrUnknownEvent is returned by Decode for an event name outside the
// inbound set.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// FieldError reports a frame whose payload is missing or malforms a field
// required for routing.
type FieldError struct {
	Event string
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("protocol: %s missing required field %q", e.Event, e.Field)
}

// Envelope is the outer frame carried on the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a complete outbound frame.
func NewEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// User identifies a conversation participant by email.
type User struct {
	Email string `json:"email"`
}

// Inbound is the closed set of events a client may send. Each variant
// carries exactly the fields routing needs plus, where recipients must see
// the original payload, the raw data to re-emit.
type Inbound interface {
	// Name returns the wire event name of the variant.
	Name() string
	isInbound()
}

// OnlineUser is the identity handshake. Until a connection sends it, the
// connection is unauthenticated and has no presence entry.
type OnlineUser struct {
	UserEmail string `json:"useremail"`
	UserID    string `json:"userId"`
}

// JoinRoom subscribes the connection to a conversation room.
type JoinRoom struct {
	Room string
}

// LeaveRoom unsubscribes the connection from a conversation room.
type LeaveRoom struct {
	Room string
}

// ExitRoom announces that users left a conversation; the remaining members
// are notified.
type ExitRoom struct {
	ExistingUsers  []User   `json:"existingUsers"`
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

// NewConversation announces a freshly created conversation to every invited
// user. Conversation holds the original payload, re-emitted verbatim.
type NewConversation struct {
	Users        []User
	Conversation json.RawMessage
}

// SendMessage carries a chat message for a conversation. NewMessage is the
// original message payload, re-emitted verbatim to recipients.
type SendMessage struct {
	ConversationID    string
	NewMessage        json.RawMessage
	ConversationUsers []User
}

// ReadMessages marks a whole conversation read by the sender.
type ReadMessages struct {
	ConversationID string `json:"conversationId"`
}

// SeenMessage marks a single message seen by UserEmail; every participant
// of the conversation is notified so clients can render read receipts.
type SeenMessage struct {
	ConversationID string
	Seen           json.RawMessage
	Users          []User
	UserEmail      string
}

func (OnlineUser) Name() string      { return EventOnlineUser }
func (JoinRoom) Name() string        { return EventJoinRoom }
func (LeaveRoom) Name() string       { return EventLeaveRoom }
func (ExitRoom) Name() string        { return EventExitRoom }
func (NewConversation) Name() string { return EventNewConversation }
func (SendMessage) Name() string     { return EventSendMessage }
func (ReadMessages) Name() string    { return EventReadMessages }
func (SeenMessage) Name() string     { return EventSeenMessage }

func (OnlineUser) isInbound()      {}
func (JoinRoom) isInbound()        {}
func (LeaveRoom) isInbound()       {}
func (ExitRoom) isInbound()        {}
func (NewConversation) isInbound() {}
func (SendMessage) isInbound()     {}
func (ReadMessages) isInbound()    {}
func (SeenMessage) isInbound()     {}

// Decode parses a raw frame into its Inbound variant, validating the fields
// the router depends on.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	switch env.Event {
	case EventOnlineUser:
		return decodeOnlineUser(env.Data)
	case EventJoinRoom:
		room, err := decodeRoom(env.Event, env.Data)
		if err != nil {
			return nil, err
		}
		return JoinRoom{Room: room}, nil
	case EventLeaveRoom:
		room, err := decodeRoom(env.Event, env.Data)
		if err != nil {
			return nil, err
		}
		return LeaveRoom{Room: room}, nil
	case EventExitRoom:
		return decodeExitRoom(env.Data)
	case EventNewConversation:
		return decodeNewConversation(env.Data)
	case EventSendMessage:
		return decodeSendMessage(env.Data)
	case EventReadMessages:
		return decodeReadMessages(env.Data)
	case EventSeenMessage:
		return decodeSeenMessage(env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeOnlineUser(data json.RawMessage) (Inbound, error) {
	var ev OnlineUser
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &FieldError{Event: EventOnlineUser, Field: "useremail"}
	}
	if ev.UserEmail == "" {
		return nil, &FieldError{Event: EventOnlineUser, Field: "useremail"}
	}
	return ev, nil
}

// join:room and leave:room carry the room id as a bare JSON string.
func decodeRoom(event string, data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		return "", &FieldError{Event: event, Field: "room"}
	}
	return room, nil
}

func decodeExitRoom(data json.RawMessage) (Inbound, error) {
	var ev ExitRoom
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &FieldError{Event: EventExitRoom, Field: "conversationId"}
	}
	if ev.ConversationID == "" {
		return nil, &FieldError{Event: EventExitRoom, Field: "conversationId"}
	}
	return ev, nil
}

func decodeNewConversation(data json.RawMessage) (Inbound, error) {
	var payload struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &FieldError{Event: EventNewConversation, Field: "users"}
	}
	if len(payload.Users) == 0 {
		return nil, &FieldError{Event: EventNewConversation, Field: "users"}
	}
	return NewConversation{Users: payload.Users, Conversation: data}, nil
}

func decodeSendMessage(data json.RawMessage) (Inbound, error) {
	var payload struct {
		NewMessage        json.RawMessage `json:"newMessage"`
		ConversationUsers struct {
			Users []User `json:"users"`
		} `json:"conversationUsers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &FieldError{Event: EventSendMessage, Field: "newMessage"}
	}
	if len(payload.NewMessage) == 0 {
		return nil, &FieldError{Event: EventSendMessage, Field: "newMessage"}
	}
	var msg struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload.NewMessage, &msg); err != nil || msg.ConversationID == "" {
		return nil, &FieldError{Event: EventSendMessage, Field: "newMessage.conversationId"}
	}
	return SendMessage{
		ConversationID:    msg.ConversationID,
		NewMessage:        payload.NewMessage,
		ConversationUsers: payload.ConversationUsers.Users,
	}, nil
}

func decodeReadMessages(data json.RawMessage) (Inbound, error) {
	var ev ReadMessages
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &FieldError{Event: EventReadMessages, Field: "conversationId"}
	}
	if ev.ConversationID == "" {
		return nil, &FieldError{Event: EventReadMessages, Field: "conversationId"}
	}
	return ev, nil
}

func decodeSeenMessage(data json.RawMessage) (Inbound, error) {
	var payload struct {
		SeenMessageUser struct {
			ConversationID string          `json:"conversationId"`
			Seen           json.RawMessage `json:"seen"`
			Conversation   struct {
				Users []User `json:"users"`
			} `json:"conversation"`
		} `json:"seenMessageUser"`
		UserEmail string `json:"userEmail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &FieldError{Event: EventSeenMessage, Field: "seenMessageUser"}
	}
	if payload.SeenMessageUser.ConversationID == "" {
		return nil, &FieldError{Event: EventSeenMessage, Field: "seenMessageUser.conversationId"}
	}
	if payload.UserEmail == "" {
		return nil, &FieldError{Event: EventSeenMessage, Field: "userEmail"}
	}
	return SeenMessage{
		ConversationID: payload.SeenMessageUser.ConversationID,
		Seen:           payload.SeenMessageUser.Seen,
		Users:          payload.SeenMessageUser.Conversation.Users,
		UserEmail:      payload.UserEmail,
	}, nil
}

// ExitUserPayload is the outbound payload of exit:user.
type ExitUserPayload struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

// ReadMessagePayload is the outbound payload of read:message.
type ReadMessagePayload struct {
	ConversationID string `json:"conversationId"`
}

// SeenUserPayload is the outbound payload of seen:user. UserEmail names the
// identity that performed the seen action so clients can render read
// receipts without an extra round trip.
type SeenUserPayload struct {
	ConversationID string          `json:"conversationId"`
	Seen           json.RawMessage `json:"seen,omitempty"`
	UserEmail      string          `json:"userEmail"`
}

// OnlineEntry is one element of the get:onlineUsers snapshot.
type OnlineEntry struct {
	UserEmail    string `json:"useremail"`
	ConnectionID string `json:"connectionId"`
}
