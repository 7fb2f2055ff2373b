package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/internal/realtime"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

// frameError is sent back to a client whose request failed.
const frameError realtime.EventType = "error"

// Frame is what a client receives. Recipients never leave the server.
type Frame struct {
	Type    realtime.EventType `json:"type"`
	GroupID string             `json:"groupId,omitempty"`
	Payload json.RawMessage    `json:"payload,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Hub 维护在线连接，按用户 ID 投递事件
type Hub struct {
	// userID -> 该用户的所有连接（多端登录）
	clients map[string]map[*Client]struct{}

	// 只有 Run 修改 clients，读取方持读锁
	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	deliver    chan realtime.Event
	done       chan struct{}

	log *logger.Logger
}

var _ realtime.Publisher = (*Hub)(nil)

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan realtime.Event, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run serves registrations and deliveries until ctx is cancelled, then closes
// every connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for uid, conns := range h.clients {
				for c := range conns {
					c.closeSend()
				}
				delete(h.clients, uid)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			conns, ok := h.clients[c.who.ID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[c.who.ID] = conns
			}
			conns[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case ev := <-h.deliver:
			h.mu.Lock()
			h.fanOut(ev)
			h.mu.Unlock()
		}
	}
}

// fanOut queues ev for the connections of its recipients. A connection whose
// queue is full is dropped. Caller holds the write lock.
func (h *Hub) fanOut(ev realtime.Event) {
	frame := Frame{Type: ev.Type, GroupID: ev.GroupID, Payload: ev.Payload}
	for _, uid := range ev.Recipients {
		for c := range h.clients[uid] {
			if !c.enqueue(frame) {
				h.log.Warn("dropping slow connection", zap.String("user_id", uid))
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	conns, ok := h.clients[c.who.ID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	c.closeSend()
	if len(conns) == 0 {
		delete(h.clients, c.who.ID)
	}
}

// Deliver hands ev to the hub. It is the handler passed to the redis
// listener, and returns without delivering once the hub has stopped.
func (h *Hub) Deliver(ev realtime.Event) {
	select {
	case h.deliver <- ev:
	case <-h.done:
	}
}

// Publish delivers ev to local connections only. It stands in for the redis
// publisher on a single node.
func (h *Hub) Publish(ctx context.Context, ev realtime.Event) error {
	select {
	case h.deliver <- ev:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Online reports how many connections userID holds.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
