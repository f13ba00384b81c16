package models

import "time"

// Participant is one of the at most two members of a room. The record lives in
// the store; the IsOnline flag tracks whether a live connection is currently
// bound to it.
type Participant struct {
	// ID is the unique identifier for the participant (UUID).
	ID string `json:"id"`
	// RoomID is the room that owns this participant.
	RoomID string `json:"roomId"`
	// Nickname is the display name chosen on join.
	Nickname string `json:"nickname"`
	// PublicKey is an opaque blob the peers exchange for end-to-end
	// encryption. The relay never interprets it.
	PublicKey string `json:"publicKey,omitempty"`
	// IsOnline reports whether a live connection is associated with this
	// participant.
	IsOnline bool `json:"isOnline"`
	// JoinedAt is the timestamp when the participant entered the room.
	JoinedAt time.Time `json:"joinedAt"`
}
