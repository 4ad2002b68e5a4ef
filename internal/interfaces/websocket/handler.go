package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reflectchat/reflectchat/internal/application/usecase"
	"github.com/reflectchat/reflectchat/pkg/safego"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the web client's deploy host is fixed
	},
}

// MessageType identifies a websocket frame.
type MessageType string

const (
	MessageTypeChat  MessageType = "chat"  // client -> server: one user message
	MessageTypeChunk MessageType = "chunk" // server -> client: reply fragment
	MessageTypeDone  MessageType = "done"  // server -> client: turn finished
	MessageTypeError MessageType = "error"
	MessageTypePing  MessageType = "ping"
	MessageTypePong  MessageType = "pong"
)

// WSMessage is a websocket frame. One chat frame in produces a stream of
// chunk frames and a terminal done frame carrying profileGenerated.
type WSMessage struct {
	Type             MessageType `json:"type"`
	ConversationID   string      `json:"conversationId,omitempty"`
	UserID           string      `json:"userId,omitempty"`
	Content          string      `json:"content,omitempty"`
	ProfileGenerated bool        `json:"profileGenerated,omitempty"`
	Timestamp        int64       `json:"timestamp"`
}

// Handler upgrades chat websocket connections.
type Handler struct {
	chatTurn *usecase.ChatTurnUseCase
	logger   *zap.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(chatTurn *usecase.ChatTurnUseCase, logger *zap.Logger) *Handler {
	return &Handler{
		chatTurn: chatTurn,
		logger:   logger.With(zap.String("handler", "websocket")),
	}
}

// Serve handles GET /ws/chat.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context dies when this handler returns, so turns get a
	// connection-scoped context instead, canceled when the read pump
	// exits.
	ctx, cancel := context.WithCancel(context.Background())

	client := &client{
		conn:     conn,
		send:     make(chan []byte, 256),
		cancel:   cancel,
		chatTurn: h.chatTurn,
		logger:   h.logger,
	}

	safego.Go(h.logger, "ws-write", client.writePump)
	safego.Go(h.logger, "ws-read", func() { client.readPump(ctx) })
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	cancel   context.CancelFunc
	chatTurn *usecase.ChatTurnUseCase
	logger   *zap.Logger
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.cancel()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("Failed to parse message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case MessageTypePing:
			c.reply(&WSMessage{Type: MessageTypePong})
		case MessageTypeChat:
			c.handleChat(ctx, &msg)
		default:
			c.reply(&WSMessage{Type: MessageTypeError, Content: "Unsupported message type"})
		}
	}
}

// handleChat runs one turn and streams it back. Turns on a connection
// run sequentially; a turn must finish before the next chat frame is
// read.
func (c *client) handleChat(ctx context.Context, msg *WSMessage) {
	if msg.ConversationID == "" || msg.UserID == "" || msg.Content == "" {
		c.reply(&WSMessage{Type: MessageTypeError, Content: "Missing required fields"})
		return
	}

	result, deltaCh := c.chatTurn.Run(ctx, usecase.ChatTurnRequest{
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		UserMessage:    msg.Content,
	})

	for chunk := range deltaCh {
		if chunk.DeltaText == "" {
			continue
		}
		c.reply(&WSMessage{Type: MessageTypeChunk, Content: chunk.DeltaText})
	}

	if result.Err != nil {
		c.logger.Error("Chat turn failed", zap.Error(result.Err))
		c.reply(&WSMessage{Type: MessageTypeError, Content: "Internal server error"})
		return
	}

	c.reply(&WSMessage{
		Type:             MessageTypeDone,
		Content:          result.AssistantResponse,
		ProfileGenerated: result.ProfileGenerated,
	})
}

// reply queues a frame for the write pump. The send blocks when the
// buffer is full; dropping a frame mid-reply would corrupt the streamed
// text, and turns on a connection are sequential so backpressure here is
// safe.
func (c *client) reply(msg *WSMessage) {
	msg.Timestamp = time.Now().Unix()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.send <- data
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// Keep draining so a blocked reply() can finish; the
				// closed connection ends the read pump, which closes
				// the channel.
				c.conn.Close()
				for range c.send {
				}
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
