// Package relay pushes mirror snapshots to browser dashboards over websocket.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"btmonitor/internal/mirror"
)

const (
	sendBuffer     = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message is the frame sent to dashboards.
type Message struct {
	Type string          `json:"type"`
	Data mirror.Snapshot `json:"data"`
}

type Client struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	// initial is read by the hub when the client registers. seq is the
	// newest snapshot queued for the client; only the hub touches it.
	initial func() mirror.Snapshot
	seq     uint64
}

type frame struct {
	seq  uint64
	data []byte
}

type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	done       chan struct{}
	count      atomic.Int32
	log        *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, 1),
		done:       make(chan struct{}),
		log:        logger.Named("relay"),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.count.Store(0)
			return

		case c := <-h.register:
			h.clients[c.ID] = c
			h.count.Store(int32(len(h.clients)))
			h.sendInitial(c)
			h.log.Info("dashboard connected", zap.Stringer("client", c.ID))

		case c := <-h.unregister:
			if cur, ok := h.clients[c.ID]; ok && cur == c {
				delete(h.clients, c.ID)
				close(c.Send)
				h.count.Store(int32(len(h.clients)))
				h.log.Info("dashboard disconnected", zap.Stringer("client", c.ID))
			}

		case f := <-h.broadcast:
			for id, c := range h.clients {
				if c.seq >= f.seq {
					// Already covered by the snapshot sent on register.
					continue
				}
				select {
				case c.Send <- f.data:
					c.seq = f.seq
				default:
					// Too slow to keep up; the write pump closes the socket.
					close(c.Send)
					delete(h.clients, id)
					h.log.Warn("dropping slow dashboard", zap.Stringer("client", id))
				}
			}
			h.count.Store(int32(len(h.clients)))
		}
	}
}

// sendInitial queues the current snapshot for a client that just joined.
// Running on the hub loop means no broadcast can slip between the read of
// the current snapshot and the client joining the set.
func (h *Hub) sendInitial(c *Client) {
	if c.initial == nil {
		return
	}
	snap := c.initial()
	data, err := encode(snap)
	if err != nil {
		h.log.Error("encode snapshot", zap.Error(err))
		return
	}
	select {
	case c.Send <- data:
		c.seq = snap.Seq
	default:
	}
}

// Publish queues snap for every client. It never blocks: an unsent older
// snapshot is replaced by the newer one.
func (h *Hub) Publish(snap mirror.Snapshot) {
	data, err := encode(snap)
	if err != nil {
		h.log.Error("encode snapshot", zap.Error(err))
		return
	}
	f := frame{seq: snap.Seq, data: data}
	for {
		select {
		case h.broadcast <- f:
			return
		default:
		}
		select {
		case <-h.broadcast:
		default:
		}
	}
}

// NumClients is the number of registered dashboards.
func (h *Hub) NumClients() int { return int(h.count.Load()) }

func encode(snap mirror.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Type: "snapshot", Data: snap})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades dashboard connections. Each new client first receives
// current(), then every published snapshot.
func (h *Hub) Handler(current func() mirror.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("upgrade failed", zap.Error(err))
			return
		}

		c := &Client{
			ID:      uuid.New(),
			Conn:    conn,
			Send:    make(chan []byte, sendBuffer),
			hub:     h,
			initial: current,
		}

		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump()
	}
}

// readPump only watches for the peer going away; dashboards send nothing.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
