package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

// roomLink builds the shareable join link for a room. The token is a
// tamper-evident encoding of the room identifier with the room's own expiry —
// it carries no user identity.
func (h *Handler) roomLink(roomID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"room_id": roomID,
		"exp":     expiresAt.Unix(),
		"iss":     "vanishchat-relay",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.Cfg.LinkSecret))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/room/%s?t=%s", h.Cfg.BaseURL, roomID, signed), nil
}

var errBadLinkToken = errors.New("invalid room link token")

// parseRoomToken verifies a room-link token and returns the room id it names.
func (h *Handler) parseRoomToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadLinkToken
		}
		return []byte(h.Cfg.LinkSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errBadLinkToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errBadLinkToken
	}
	roomID, ok := claims["room_id"].(string)
	if !ok || roomID == "" {
		return "", errBadLinkToken
	}
	return roomID, nil
}

// ResolveLink turns a room-link token back into a room id, rejecting expired
// or tampered tokens. Expiry of the token tracks expiry of the room, so a
// dead link answers 410 like a dead room.
func (h *Handler) ResolveLink(c *gin.Context) {
	tokenString := c.Query("t")
	if tokenString == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	roomID, err := h.parseRoomToken(tokenString)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "link expired or invalid"})
		return
	}

	if _, ok := h.Store.Room(roomID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"roomId": roomID})
}
