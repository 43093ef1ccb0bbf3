package casehub

import (
	"arbiter/backend/internal/models"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// WebSocketClient streams the events of one case to a browser.
// The connection is receive-only from the client's point of view; anything
// it sends is discarded.
type WebSocketClient struct {
	UserID string
	CaseID string
	Conn   *websocket.Conn
	Hub    *Manager
	Send   chan models.CaseEvent

	closeOnce sync.Once
}

func NewWebSocketClient(hub *Manager, conn *websocket.Conn, userID, caseID string) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		CaseID: caseID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.CaseEvent, sendBuffer),
	}
}

func (c *WebSocketClient) GetUserID() string                       { return c.UserID }
func (c *WebSocketClient) GetCaseID() string                       { return c.CaseID }
func (c *WebSocketClient) GetSendChannel() chan<- models.CaseEvent { return c.Send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close ends the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read failed", "case_id", c.CaseID, "user_id", c.UserID, "error", err)
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
