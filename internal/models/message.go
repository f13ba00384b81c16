package models

import "time"

// Message types carried by the relay. The relay treats content as opaque; an
// image message carries its payload in EncryptedData like any other.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message is a relayed chat message. Content and EncryptedData are opaque to
// the relay, which only manages the message lifecycle.
type Message struct {
	// ID is the unique identifier for the message (UUID).
	ID string `json:"id"`
	// RoomID is the room the message belongs to.
	RoomID string `json:"roomId"`
	// SenderNickname is the display name of the sender at send time.
	SenderNickname string `json:"senderNickname"`
	// Content is the message body (ciphertext or plaintext, the relay does
	// not care).
	Content string `json:"content"`
	// MessageType is "text" or "image".
	MessageType string `json:"messageType"`
	// EncryptedData is an optional opaque payload, e.g. an encrypted image blob.
	EncryptedData string `json:"encryptedData,omitempty"`
	// IsViewOnce marks the message for deletion the moment it is viewed.
	IsViewOnce bool `json:"isViewOnce"`
	// HasBeenViewed flips to true once, via the mark-viewed operation.
	HasBeenViewed bool `json:"hasBeenViewed"`
	// CreatedAt is the timestamp when the message was created.
	CreatedAt time.Time `json:"createdAt"`
	// ExpiresAt is the deletion deadline. A nil value means the message never
	// expires on its own (only explicit deletion or a room cascade removes it).
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Live reports whether the message is still visible at the given instant:
// neither past its expiry nor a view-once message that was already consumed.
func (m *Message) Live(now time.Time) bool {
	if m.IsViewOnce && m.HasBeenViewed {
		return false
	}
	if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
		return false
	}
	return true
}
