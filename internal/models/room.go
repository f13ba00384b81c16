package models

import "time"

// Room represents a short-lived session container for at most two participants.
// It holds the lifecycle state of the session and the TTL applied to messages
// created inside it.
type Room struct {
	// ID is the unique identifier for the room (UUID).
	ID string `json:"id"`
	// CreatedAt is the timestamp when the room was created.
	CreatedAt time.Time `json:"createdAt"`
	// ExpiresAt is the absolute deadline after which the room is deleted.
	ExpiresAt time.Time `json:"expiresAt"`
	// IsActive is true while both participant slots are occupied.
	IsActive bool `json:"isActive"`
	// ParticipantCount is the number of participants currently in the room (0..2).
	ParticipantCount int `json:"participantCount"`
	// DefaultMessageTTLSeconds is applied to messages created without an
	// explicit expiry.
	DefaultMessageTTLSeconds int `json:"defaultMessageTtlSeconds"`
}

// MaxRoomParticipants is a hard capacity limit, not a soft preference.
const MaxRoomParticipants = 2
