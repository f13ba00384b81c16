package models

import (
	"encoding/json"
	"time"
)

// Inbound signal kinds. Frames whose type matches none of these are ignored.
const (
	SignalJoinRoom         = "join_room"
	SignalSendMessage      = "send_message"
	SignalTyping           = "typing"
	SignalCallOffer        = "call_offer"
	SignalCallAnswer       = "call_answer"
	SignalCallICECandidate = "call_ice_candidate"
	SignalCallRejected     = "call_rejected"
	SignalCallEnded        = "call_ended"
	SignalLeaveRoom        = "leave_room"
)

// Outbound event kinds.
const (
	EventError          = "error"
	EventRoomJoined     = "room_joined"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventNewMessage     = "new_message"
	EventMessageDeleted = "message_deleted"
	EventRoomDeleted    = "room_deleted"
	EventTyping         = "typing"
)

// Envelope is the first-pass decode of any inbound frame: just enough to pick
// a handler. The full frame is re-decoded into the per-kind payload struct.
type Envelope struct {
	Type string `json:"type"`
}

// JoinRoomPayload asks to enter a room. PublicKey is opaque key material the
// peers exchange; the relay never inspects it.
type JoinRoomPayload struct {
	RoomID    string `json:"roomId" validate:"required"`
	Nickname  string `json:"nickname" validate:"required"`
	PublicKey string `json:"publicKey"`
}

// SendMessagePayload carries a new message. ExpiresAt, when set by the client,
// overrides the room's default message TTL.
type SendMessagePayload struct {
	Content       string     `json:"content" validate:"required"`
	MessageType   string     `json:"messageType" validate:"omitempty,oneof=text image"`
	EncryptedData string     `json:"encryptedData"`
	IsViewOnce    bool       `json:"isViewOnce"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

// TypingPayload toggles the sender's typing indicator for the peer.
type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// ErrorEvent is sent to the offending connection only.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RoomJoinedEvent is the reply to a successful join, sent to the joiner alone.
type RoomJoinedEvent struct {
	Type         string        `json:"type"`
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	Participant  Participant   `json:"participant"`
}

// UserJoinedEvent tells existing members someone entered.
type UserJoinedEvent struct {
	Type             string      `json:"type"`
	Participant      Participant `json:"participant"`
	ParticipantCount int         `json:"participantCount"`
}

// UserLeftEvent tells remaining members someone left.
type UserLeftEvent struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
}

// NewMessageEvent delivers a freshly created message to every room member,
// the sender included.
type NewMessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageDeletedEvent announces that a message is gone, whatever the cause
// (explicit delete, TTL, view-once, cascade).
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// RoomDeletedEvent announces that the room itself is gone.
type RoomDeletedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// TypingEvent relays a typing indicator to everyone but the sender.
type TypingEvent struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	IsTyping      bool   `json:"isTyping"`
}

// StampCallFrame re-encodes a call-signaling frame with fromNickname set,
// leaving every other field untouched. Call payloads are otherwise relayed
// verbatim; their contents mean nothing to the relay.
func StampCallFrame(raw []byte, nickname string) ([]byte, error) {
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	name, err := json.Marshal(nickname)
	if err != nil {
		return nil, err
	}
	frame["fromNickname"] = name
	return json.Marshal(frame)
}
