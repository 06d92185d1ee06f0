package api

import (
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"emsxbridge.com/internal/infra"
)

// WsRequest is sent by clients to pick the orders they watch. A zero
// Sequence means the whole blotter.
type WsRequest struct {
	Action   string `json:"Action"`
	Sequence int64  `json:"Sequence"`
}

func (r WsRequest) topic() string {
	if r.Sequence == 0 {
		return infra.TopicAll
	}
	return infra.OrderTopic(r.Sequence)
}

// InitWebsocket mounts /ws, which streams blotter updates.
func InitWebsocket(app *fiber.App, wsManager *infra.WsManager, log *zap.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := infra.NewWsClient(c)
		wsManager.Register <- client
		defer func() {
			wsManager.Unregister <- client
		}()

		// ?sequence=1001 subscribes on connect
		switch seq := c.Query("sequence"); seq {
		case "":
		case "*":
			wsManager.Subscribe(client, infra.TopicAll)
		default:
			if n, err := strconv.ParseInt(seq, 10, 64); err == nil {
				wsManager.Subscribe(client, infra.OrderTopic(n))
			}
		}

		var msg WsRequest
		for {
			if err := c.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Debug("WS: read error", zap.Error(err))
				}
				break
			}

			switch msg.Action {
			case "subscribe":
				wsManager.Subscribe(client, msg.topic())
			case "unsubscribe":
				wsManager.Unsubscribe(client, msg.topic())
			default:
				log.Debug("WS: unexpected action", zap.String("action", msg.Action))
			}
		}
	}))
}
