package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WebsocketEndpoint is the bridge side of a websocket connection accepted
// by fiber.
type WebsocketEndpoint struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	commands chan Command
	errs     chan error
	once     sync.Once
	closed   chan struct{}
}

func NewWebsocketEndpoint(conn *websocket.Conn) *WebsocketEndpoint {
	e := &WebsocketEndpoint{
		conn:     conn,
		commands: make(chan Command, 100),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
	go e.readLoop()
	return e
}

func (e *WebsocketEndpoint) readLoop() {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			select {
			case e.errs <- fmt.Errorf("gateway: websocket read: %w", err):
			default:
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		select {
		case e.commands <- cmd:
		case <-e.closed:
			return
		}
	}
}

func (e *WebsocketEndpoint) Recv(ctx context.Context) (Command, error) {
	select {
	case cmd := <-e.commands:
		return cmd, nil
	case err := <-e.errs:
		return Command{}, err
	case <-e.closed:
		return Command{}, ErrClosed
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

func (e *WebsocketEndpoint) Emit(ctx context.Context, env Envelope) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("gateway: marshal event: %w", err)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("gateway: websocket write: %w", err)
	}
	return nil
}

// Ping keeps an idle client's read deadline alive.
func (e *WebsocketEndpoint) Ping() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (e *WebsocketEndpoint) Close() error {
	e.once.Do(func() { close(e.closed) })
	return nil
}

// WebsocketHandler upgrades requests and hands each connection to serve,
// which runs until the connection ends. Pings go out every pingInterval
// (zero disables them).
func WebsocketHandler(pingInterval time.Duration, serve func(ctx context.Context, ep Endpoint) error) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		ep := NewWebsocketEndpoint(c)
		defer ep.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if pingInterval > 0 {
			go func() {
				ticker := time.NewTicker(pingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := ep.Ping(); err != nil {
							cancel()
							return
						}
					}
				}
			}()
		}

		serve(ctx, ep)
	})
}

// UpgradeRequired rejects plain HTTP requests on a websocket route.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
