package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vanishchat/backend/internal/chathub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The room id is the only credential this system has, so any origin may
	// connect. Tighten per deployment if the UI is served from one origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection and registers it with the hub.
// The connection joins a room later via a join_room frame; until then it holds
// no association.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
		return
	}

	client := &chathub.WebSocketClient{
		ID:   uuid.NewString(),
		Conn: conn,
		Hub:  h.Hub,
		Send: make(chan []byte, h.Cfg.SendBufferSize),
	}

	h.Hub.RegisterCh <- client
	client.Run()
}
