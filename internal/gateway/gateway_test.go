package gateway

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewCommandAssignsRequestID(t *testing.T) {
	a := NewCommand(CmdSubscribe)
	b := NewCommand(CmdSubscribe)

	assert.Equal(t, CmdSubscribe, a.Type)
	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestPipeRoundTrip(t *testing.T) {
	ctx := testContext(t)
	client, server := NewPipe(4)

	cmd := NewCommand(CmdOpenService)
	cmd.Service = "//blp/emapisvc_beta"
	cmd.CorrelationID = 3
	require.NoError(t, client.Send(ctx, cmd))

	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)

	env := Envelope{EventType: "SERVICE_STATUS", Messages: []WireMessage{{MessageType: "ServiceOpened", CorrelationIDs: []int64{3}}}}
	require.NoError(t, server.Emit(ctx, env))

	received, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, env, received)
}

func TestPipeClose(t *testing.T) {
	ctx := testContext(t)
	client, server := NewPipe(1)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.ErrorIs(t, client.Send(ctx, NewCommand(CmdStopSession)), ErrClosed)
	_, err := client.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = server.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, server.Emit(ctx, Envelope{}), ErrClosed)
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	client, _ := NewPipe(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisTransportRoundTrip(t *testing.T) {
	ctx := testContext(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	opts := RedisOptions{CommandQueue: "cmd", EventQueue: "evt", SubscriptionChannel: "sub."}
	client, err := NewRedisTransport(ctx, rdb, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()
	server := NewRedisEndpoint(rdb, opts)

	cmd := NewCommand(CmdSubscribe)
	cmd.CorrelationID = 42
	cmd.Topic = "//blp/emapisvc_beta/order?fields=EMSX_TICKER"
	require.NoError(t, client.Send(ctx, cmd))

	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)

	status := Envelope{EventType: "SUBSCRIPTION_STATUS", Messages: []WireMessage{{MessageType: "SubscriptionStarted", CorrelationIDs: []int64{42}}}}
	require.NoError(t, server.Emit(ctx, status))

	env, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, status, env)

	data := Envelope{EventType: "SUBSCRIPTION_DATA", Messages: []WireMessage{{
		MessageType:    "OrderRouteFields",
		CorrelationIDs: []int64{42},
		Fields:         json.RawMessage(`{"EVENT_STATUS":1}`),
	}}}
	require.NoError(t, server.Emit(ctx, data))

	env, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SUBSCRIPTION_DATA", env.EventType)
	require.Len(t, env.Messages, 1)
	assert.Equal(t, []int64{42}, env.Messages[0].CorrelationIDs)
	assert.JSONEq(t, `{"EVENT_STATUS":1}`, string(env.Messages[0].Fields))
}

func TestRedisTransportClose(t *testing.T) {
	ctx := testContext(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client, err := NewRedisTransport(ctx, rdb, RedisOptions{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.ErrorIs(t, client.Send(ctx, NewCommand(CmdStopSession)), ErrClosed)
	_, err = client.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCorrelationFromChannel(t *testing.T) {
	cid, err := CorrelationFromChannel("emsx.sub.", "emsx.sub.17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), cid)

	_, err = CorrelationFromChannel("emsx.sub.", "emsx.sub.abc")
	assert.Error(t, err)
}

func TestWebsocketRoundTrip(t *testing.T) {
	ctx := testContext(t)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", UpgradeRequired)
	app.Get("/ws", WebsocketHandler(0, func(ctx context.Context, ep Endpoint) error {
		for {
			cmd, err := ep.Recv(ctx)
			if err != nil {
				return err
			}
			reply := Envelope{EventType: "SESSION_STATUS", Messages: []WireMessage{{MessageType: "SessionStarted"}}}
			if cmd.Type == CmdStopSession {
				reply.Messages[0].MessageType = "SessionTerminated"
			}
			if err := ep.Emit(ctx, reply); err != nil {
				return err
			}
		}
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	client, err := DialWebsocket(ctx, "ws://"+ln.Addr().String()+"/ws", 2*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(ctx, NewCommand(CmdStartSession)))
	env, err := client.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, env.Messages, 1)
	assert.Equal(t, "SessionStarted", env.Messages[0].MessageType)

	require.NoError(t, client.Send(ctx, NewCommand(CmdStopSession)))
	env, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SessionTerminated", env.Messages[0].MessageType)
}

func TestTransportErrorMarksTimeouts(t *testing.T) {
	deadline := &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}
	assert.ErrorIs(t, transportError("websocket read", deadline), ErrTimeout)
	assert.ErrorIs(t, transportError("push command", context.DeadlineExceeded), ErrTimeout)

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	err := transportError("poll events", refused)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestWebsocketReadDeadlineIsTimeout(t *testing.T) {
	ctx := testContext(t)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", UpgradeRequired)
	// the bridge never answers and never pings
	app.Get("/ws", WebsocketHandler(0, func(ctx context.Context, ep Endpoint) error {
		_, err := ep.Recv(ctx)
		return err
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	client, err := DialWebsocket(ctx, "ws://"+ln.Addr().String()+"/ws", 100*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Receive(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}
