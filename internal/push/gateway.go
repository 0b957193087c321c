// Package push streams published facts to websocket clients.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-feed/internal/observability"
	"market-feed/internal/publish"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is a client control frame.
type Request struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string `json:"topic"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Gateway is a broker subscriber that forwards every message to the
// websocket clients subscribed to its topic. Slow clients lose messages
// instead of stalling delivery.
type Gateway struct {
	logger        *zap.Logger
	mu            sync.RWMutex
	clients       map[*client]bool
	subscriptions map[publish.Topic]map[*client]bool
}

// NewGateway creates a gateway with no clients.
func NewGateway(logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		logger:        logger,
		clients:       make(map[*client]bool),
		subscriptions: make(map[publish.Topic]map[*client]bool),
	}
}

func (g *Gateway) Name() string            { return "push" }
func (g *Gateway) Topics() []publish.Topic { return nil }

// Deliver forwards msg to subscribed clients.
func (g *Gateway) Deliver(_ context.Context, msg publish.Message) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	clients := g.subscriptions[msg.Topic]
	if len(clients) == 0 {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	for c := range clients {
		select {
		case c.send <- data:
		default:
			g.logger.Debug("client send buffer full", zap.String("client", c.id))
		}
	}
	return nil
}

// Subscribers returns the number of clients subscribed to topic.
func (g *Gateway) Subscribers(topic publish.Topic) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subscriptions[topic])
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()
	observability.DefaultMetrics.WSConnections.Inc()

	go g.writePump(c)
	g.readPump(c)
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic, clients := range g.subscriptions {
			delete(clients, c)
			if len(clients) == 0 {
				delete(g.subscriptions, topic)
			}
		}
		close(c.send)
		g.mu.Unlock()
		observability.DefaultMetrics.WSConnections.Dec()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		topic, ok := publish.ParseTopic(req.Topic)
		if !ok {
			g.logger.Debug("unknown topic requested", zap.String("client", c.id), zap.String("topic", req.Topic))
			continue
		}

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.subscriptions[topic] == nil {
				g.subscriptions[topic] = make(map[*client]bool)
			}
			g.subscriptions[topic][c] = true
			g.logger.Info("client subscribed to topic", zap.String("client", c.id), zap.String("topic", req.Topic))
		case "unsubscribe":
			if clients, ok := g.subscriptions[topic]; ok {
				delete(clients, c)
				if len(clients) == 0 {
					delete(g.subscriptions, topic)
				}
			}
		}
		g.mu.Unlock()
	}
}

func (g *Gateway) writePump(c *client) {
	defer c.conn.Close()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

var _ publish.Subscriber = (*Gateway)(nil)
