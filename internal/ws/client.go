package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/internal/service"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	logger "github.com/Gopher0727/GiftList/middleware/log"
	"github.com/Gopher0727/GiftList/utils/ratelimit"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Request is what a client sends: a chat message or a read marker.
type Request struct {
	Type    string    `json:"type"`
	GroupID string    `json:"groupId"`
	Body    string    `json:"body,omitempty"`
	At      time.Time `json:"at,omitzero"`
}

const (
	requestMessage = "message"
	requestRead    = "read"
)

// Options are the collaborators of a connection. Limiter may be nil.
type Options struct {
	Messages service.IMessageService
	Limiter  ratelimit.Limiter
	Rule     ratelimit.Rule
	Log      *logger.Logger
}

// Client 代表一个 WebSocket 连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	who  service.Identity
	opts Options

	// send 只在 mu 下写入和关闭
	mu     sync.Mutex
	send   chan Frame
	closed bool
}

// enqueue queues f without blocking. It reports false when the queue is full
// or already closed.
func (c *Client) enqueue(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue once; writePump then closes the connection.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump 读取客户端请求并交给消息服务处理，直到连接断开
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.opts.Log.Warn("websocket closed", zap.String("user_id", c.who.ID), zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.reply(Frame{Type: frameError, Error: "malformed request"})
			continue
		}
		c.handle(logger.WithTraceID(ctx, ""), req)
	}
}

func (c *Client) handle(ctx context.Context, req Request) {
	var err error
	switch req.Type {
	case requestMessage:
		if c.opts.Limiter != nil {
			allowed, lerr := c.opts.Limiter.Allow(ctx, "ws-message:"+c.who.ID, c.opts.Rule)
			if lerr != nil || !allowed {
				c.reply(Frame{Type: frameError, GroupID: req.GroupID, Error: "rate limit exceeded"})
				return
			}
		}
		// 成功的消息经 Publisher 回到所有成员（包括发送者），这里不再回显
		_, err = c.opts.Messages.SendMessage(ctx, c.who, req.GroupID, req.Body)
	case requestRead:
		err = c.opts.Messages.MarkRead(ctx, c.who, req.GroupID, req.At)
	default:
		err = errUnknownRequest
	}
	if err != nil {
		c.opts.Log.DebugContext(ctx, "websocket request failed",
			zap.String("user_id", c.who.ID),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		c.reply(Frame{Type: frameError, GroupID: req.GroupID, Error: clientError(err)})
	}
}

var errUnknownRequest = errors.New("unknown request type")

// clientError hides server faults from the peer.
func clientError(err error) string {
	for _, known := range []error{
		errUnknownRequest,
		service.ErrInvalidBody,
		service.ErrNotAMember,
		service.ErrInsufficientPermission,
		service.ErrGroupNotFound,
		service.ErrMessagesUnsupported,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// reply queues f for this connection only. It is dropped when the queue is
// full or the hub has already closed it.
func (c *Client) reply(f Frame) {
	c.enqueue(f)
}

// writePump 把发送队列写到连接上，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request. The jwt middleware must run
// first; browsers pass the token as ?token=.
func ServeWs(hub *Hub, opts Options) gin.HandlerFunc {
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	return func(c *gin.Context) {
		userID := c.GetString(jwt.ContextUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			opts.Log.WarnContext(c.Request.Context(), "failed to upgrade websocket", zap.Error(err))
			return
		}

		client := &Client{
			hub:  hub,
			conn: conn,
			send: make(chan Frame, sendBuffer),
			who:  service.Identity{ID: userID, DisplayName: c.GetString(jwt.ContextDisplayName)},
			opts: opts,
		}
		if !hub.join(client) {
			conn.Close()
			return
		}

		// 请求的 context 在 handler 返回后失效，连接使用独立的 context
		ctx, cancel := context.WithCancel(context.Background())
		go client.writePump()
		go func() {
			defer cancel()
			client.readPump(ctx)
		}()
	}
}
