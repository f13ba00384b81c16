package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"vanishchat/backend/internal/models"
)

type createRoomRequest struct {
	DefaultMessageTTLSeconds int `json:"defaultMessageTtlSeconds" binding:"omitempty,gt=0"`
}

// CreateRoom creates a room and returns its id, expiry and a shareable link.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	room := h.Store.CreateRoom(req.DefaultMessageTTLSeconds)

	link, err := h.roomLink(room.ID, room.ExpiresAt)
	if err != nil {
		log.Printf("handler: unable to sign room link: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to create room link"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"roomId":    room.ID,
		"link":      link,
		"expiresAt": room.ExpiresAt,
	})
}

// GetRoom looks a room up. An expired room answers 410 and is cascade-deleted
// as a side effect of the lookup.
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.lookupRoom(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":             room,
		"participantCount": room.ParticipantCount,
		"canJoin":          room.ParticipantCount < models.MaxRoomParticipants,
	})
}

// ListMessages returns the room's messages that are still visible: neither
// past their expiry nor view-once ones that were already consumed.
func (h *Handler) ListMessages(c *gin.Context) {
	room, ok := h.lookupRoom(c)
	if !ok {
		return
	}

	messages := h.Store.LiveMessagesByRoom(room.ID)
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// MarkViewed marks a message as viewed, which deletes it on the spot when it
// is view-once. Calling it again for an already-gone message succeeds without
// a second deletion event.
func (h *Handler) MarkViewed(c *gin.Context) {
	roomID := c.Param("roomId")
	messageID := c.Param("messageId")

	if msg, ok := h.Store.Message(messageID); ok && msg.RoomID != roomID {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	_, deleted, err := h.Store.MarkMessageViewed(messageID)
	if err != nil {
		// Already deleted: viewing is idempotent, the terminal state is the
		// same either way and no second deletion event is emitted.
		c.JSON(http.StatusOK, gin.H{"viewed": true, "deleted": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{"viewed": true, "deleted": deleted})
}

// Health is the liveness surface. Connections is the number of live
// room-associated sockets, read straight off the connection registry.
func (h *Handler) Health(c *gin.Context) {
	rooms, participants, messages := h.Store.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"connections":  h.Registry.Size(),
		"rooms":        rooms,
		"participants": participants,
		"messages":     messages,
	})
}

// lookupRoom fetches the room named in the path, writing the 404/410 response
// itself when the room is unknown or expired. Expiry detected here triggers
// the same cascade as the sweeper.
func (h *Handler) lookupRoom(c *gin.Context) (models.Room, bool) {
	roomID := c.Param("roomId")

	room, ok := h.Store.Room(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return models.Room{}, false
	}
	if room.ExpiresAt.Before(h.now()) {
		h.Store.DeleteRoom(room.ID)
		c.JSON(http.StatusGone, gin.H{"error": "room expired"})
		return models.Room{}, false
	}
	return room, true
}
