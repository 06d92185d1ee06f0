package infra

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"emsxbridge.com/internal/emsx"
)

// TopicAll receives every blotter update.
const TopicAll = "*"

// OrderTopic is the topic of one order and its routes.
func OrderTopic(sequence int64) string {
	return fmt.Sprintf("order:%d", sequence)
}

// JSONConn is the part of a websocket connection the manager writes to.
type JSONConn interface {
	WriteJSON(v any) error
	Close() error
}

// WsClient is one connected browser or tool.
type WsClient struct {
	conn JSONConn
	send chan any
}

func NewWsClient(conn JSONConn) *WsClient {
	return &WsClient{conn: conn, send: make(chan any, 256)}
}

// UpdateMessage is what clients receive for each blotter update.
type UpdateMessage struct {
	Kind          string         `json:"Kind"`
	Status        string         `json:"Status"`
	EventStatus   int            `json:"EventStatus"`
	CorrelationID int64          `json:"CorrelationID"`
	Sequence      int64          `json:"Sequence"`
	RouteID       int64          `json:"RouteID,omitempty"`
	Fields        map[string]any `json:"Fields"`
}

func NewUpdateMessage(u emsx.Update) UpdateMessage {
	return UpdateMessage{
		Kind:          string(u.Kind),
		Status:        u.Status.String(),
		EventStatus:   int(u.Status),
		CorrelationID: int64(u.CorrelationID),
		Sequence:      u.Sequence(),
		RouteID:       u.RouteID(),
		Fields:        u.Map(),
	}
}

// WsManager tracks websocket clients and the blotter topics they watch.
type WsManager struct {
	log *zap.Logger

	// client -> registered
	clients map[*WsClient]bool

	// topic -> clients
	//	"*":          every update
	//	"order:1001": updates of order 1001 and its routes
	subscriptions map[string]map[*WsClient]bool

	mu sync.RWMutex

	Register   chan *WsClient
	Unregister chan *WsClient
}

func NewWsManager(log *zap.Logger) *WsManager {
	return &WsManager{
		log:           log,
		clients:       make(map[*WsClient]bool),
		subscriptions: make(map[string]map[*WsClient]bool),
		Register:      make(chan *WsClient),
		Unregister:    make(chan *WsClient),
	}
}

// Start serves registrations until ctx is cancelled.
func (manager *WsManager) Start(ctx context.Context) {
	manager.log.Info("WsManager: started")
	for {
		select {
		case <-ctx.Done():
			manager.log.Info("WsManager: stopped")
			return

		case client := <-manager.Register:
			manager.mu.Lock()
			manager.clients[client] = true
			manager.mu.Unlock()

			// a dedicated writer keeps a slow client from blocking the feed
			go func(c *WsClient) {
				for msg := range c.send {
					if err := c.conn.WriteJSON(msg); err != nil {
						manager.log.Debug("WsManager: write failed", zap.Error(err))
						c.conn.Close()
						return
					}
				}
			}(client)
			manager.log.Debug("WsManager: client connected")

		case client := <-manager.Unregister:
			manager.mu.Lock()
			if _, ok := manager.clients[client]; ok {
				delete(manager.clients, client)
				for topic, clients := range manager.subscriptions {
					delete(clients, client)
					if len(clients) == 0 {
						delete(manager.subscriptions, topic)
					}
				}
				close(client.send)
			}
			manager.mu.Unlock()
			manager.log.Debug("WsManager: client disconnected")
		}
	}
}

func (manager *WsManager) Subscribe(client *WsClient, topic string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.subscriptions[topic] == nil {
		manager.subscriptions[topic] = make(map[*WsClient]bool)
	}
	manager.subscriptions[topic][client] = true
}

func (manager *WsManager) Unsubscribe(client *WsClient, topic string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if clients, ok := manager.subscriptions[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.subscriptions, topic)
		}
	}
}

// PushUpdate implements domain.Notifier. A client watching both the order
// and the whole blotter gets the update once.
func (manager *WsManager) PushUpdate(u emsx.Update) {
	msg := NewUpdateMessage(u)

	manager.mu.RLock()
	defer manager.mu.RUnlock()

	sent := make(map[*WsClient]bool)
	for _, topic := range []string{OrderTopic(msg.Sequence), TopicAll} {
		for client := range manager.subscriptions[topic] {
			if sent[client] {
				continue
			}
			sent[client] = true
			select {
			case client.send <- msg:
			default:
				// buffer full, drop for this client only
			}
		}
	}
}

func (manager *WsManager) ClientCount() int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.clients)
}
