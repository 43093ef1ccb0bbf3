package handler

import (
	"arbiter/backend/internal/casehub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client has a fixed domain.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeCaseEvents upgrades to a websocket that streams the events of one
// case. Only users who may view the case can subscribe.
func (h *Handler) ServeCaseEvents(c *gin.Context) {
	userID := actingUser(c)
	caseID := c.Param("id")
	if _, err := h.Cases.GetCase(c.Request.Context(), caseID, userID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.logger.Warn("websocket upgrade failed", "case_id", caseID, "error", err)
		return
	}

	client := casehub.NewWebSocketClient(h.Hub, conn, userID, caseID)
	if err := h.Hub.Register(c.Request.Context(), client); err != nil {
		h.logger.Warn("websocket register failed", "case_id", caseID, "error", err)
		_ = conn.Close()
		return
	}
	client.Run()
}
