package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebsocketTransport talks to the bridge over a single websocket. Commands
// and events are JSON text frames.
type WebsocketTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	log         *zap.Logger

	writeMu sync.Mutex
	events  chan Envelope
	errs    chan error
	once    sync.Once
	closed  chan struct{}
}

// DialWebsocket connects to url and starts the reader goroutine. A read
// timeout of zero disables the read deadline.
func DialWebsocket(ctx context.Context, url string, readTimeout time.Duration, log *zap.Logger) (*WebsocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %s: %w", url, err)
	}
	log.Info("Gateway: websocket connected", zap.String("url", url))

	t := &WebsocketTransport{
		conn:        conn,
		readTimeout: readTimeout,
		log:         log,
		events:      make(chan Envelope, 1000),
		errs:        make(chan error, 1),
		closed:      make(chan struct{}),
	}

	// The bridge pings while idle; each ping pushes the deadline out.
	conn.SetPingHandler(func(appData string) error {
		t.extendDeadline()
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	go t.readLoop()
	return t, nil
}

func (t *WebsocketTransport) extendDeadline() {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
}

func (t *WebsocketTransport) readLoop() {
	for {
		t.extendDeadline()
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.log.Warn("Gateway: websocket read failed", zap.Error(err))
				t.errs <- transportError("websocket read", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("Gateway: dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case t.events <- env:
		case <-t.closed:
			return
		}
	}
}

func (t *WebsocketTransport) Send(ctx context.Context, cmd Command) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("gateway: marshal command: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	} else {
		t.conn.SetWriteDeadline(time.Time{})
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return transportError("websocket write", err)
	}
	return nil
}

func (t *WebsocketTransport) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env := <-t.events:
		return env, nil
	case err := <-t.errs:
		return Envelope{}, err
	case <-t.closed:
		return Envelope{}, ErrClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (t *WebsocketTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
