package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paul-berdier/greg-voice/internal/presence"
)

const wsWriteTimeout = 5 * time.Second

// wsInbound is a client frame: overlay_register or overlay_ping
type wsInbound struct {
	Event string `json:"event"`
	Data  struct {
		UserID  FlexString             `json:"user_id"`
		GuildID FlexString             `json:"guild_id"`
		Meta    map[string]interface{} `json:"meta"`
	} `json:"data"`
}

// wsConn serializes writes: the fan-out pump and protocol replies share
// the connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) write(ctx context.Context, payload interface{}) error {
	msg, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.writeRaw(ctx, msg)
}

func (w *wsConn) writeRaw(ctx context.Context, msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return w.conn.Write(wctx, websocket.MessageText, msg)
}

// handleWS serves GET /ws: the overlay subscription transport.
// overlay_register joins the guild room, overlay_ping refreshes the TTL;
// playlist_update frames flow out through the hub client.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket accept failed")
		return
	}

	id := uuid.New().String()
	wc := &wsConn{conn: conn}
	ctx := c.Request.Context()

	defer func() {
		s.hub.Disconnect(id)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	_ = wc.write(ctx, presence.Envelope{Event: "connected", Data: gin.H{"ok": true}})

	// One pump per registration; a re-register closes the previous client
	// channel and its pump drains out.
	startPump := func(client *presence.Client) {
		go func() {
			for msg := range client.Messages() {
				if err := wc.writeRaw(ctx, msg); err != nil {
					return
				}
			}
		}()
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = wc.write(ctx, presence.Envelope{Event: "error", Data: gin.H{"message": "bad frame"}})
			continue
		}

		switch in.Event {
		case "overlay_register":
			if in.Data.UserID == "" {
				_ = wc.write(ctx, presence.Envelope{Event: "error", Data: gin.H{"message": "user_id required"}})
				continue
			}
			client := s.hub.Register(id, in.Data.UserID.String(), in.Data.GuildID.String(), in.Data.Meta)
			startPump(client)
			_ = wc.write(ctx, presence.Envelope{Event: "overlay_registered", Data: gin.H{"ok": true}})

		case "overlay_ping":
			s.hub.Ping(id)
			_ = wc.write(ctx, presence.Envelope{Event: "pong", Data: gin.H{"ok": true}})

		default:
			_ = wc.write(ctx, presence.Envelope{Event: "error", Data: gin.H{"message": "unknown event"}})
		}
	}
}
