package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"emsxbridge.com/internal/constants"
)

// RedisOptions names the keys shared with the bridge.
//
//	Go -> bridge:  LPUSH CommandQueue, bridge BRPOPs
//	bridge -> Go:  LPUSH EventQueue, Go BRPOPs
//	subscription data: PUBLISH <SubscriptionChannel><correlationID>
type RedisOptions struct {
	CommandQueue        string
	EventQueue          string
	SubscriptionChannel string
	PollTimeout         time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.CommandQueue == "" {
		o.CommandQueue = constants.RedisQueueCommand
	}
	if o.EventQueue == "" {
		o.EventQueue = constants.RedisQueueEvent
	}
	if o.SubscriptionChannel == "" {
		o.SubscriptionChannel = constants.RedisPubSubSubscriptionPrefix
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	return o
}

// RedisTransport sends commands and receives events through Redis.
type RedisTransport struct {
	rdb    *redis.Client
	opts   RedisOptions
	log    *zap.Logger
	pubsub *redis.PubSub

	events chan Envelope
	errs   chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

// NewRedisTransport subscribes to the data channels and starts the event
// poller. The pattern subscription is confirmed before returning so no
// subscription data published after a SUBSCRIBE command is missed.
func NewRedisTransport(ctx context.Context, rdb *redis.Client, opts RedisOptions, log *zap.Logger) (*RedisTransport, error) {
	opts = opts.withDefaults()

	pubsub := rdb.PSubscribe(ctx, opts.SubscriptionChannel+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("gateway: subscribe %s*: %w", opts.SubscriptionChannel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t := &RedisTransport{
		rdb:    rdb,
		opts:   opts,
		log:    log,
		pubsub: pubsub,
		events: make(chan Envelope, 1000),
		errs:   make(chan error, 1),
		cancel: cancel,
		closed: make(chan struct{}),
	}

	t.wg.Add(2)
	go t.pollEvents(loopCtx)
	go t.forwardSubscriptionData(loopCtx)

	return t, nil
}

// Send pushes a command onto the command list.
func (t *RedisTransport) Send(ctx context.Context, cmd Command) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("gateway: marshal command: %w", err)
	}
	if err := t.rdb.LPush(ctx, t.opts.CommandQueue, data).Err(); err != nil {
		return transportError("push command", err)
	}
	return nil
}

func (t *RedisTransport) Receive(ctx context.Context) (Envelope, error) {
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

func (t *RedisTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		t.cancel()
		err = t.pubsub.Close()
		t.wg.Wait()
	})
	return err
}

func (t *RedisTransport) pollEvents(ctx context.Context) {
	defer t.wg.Done()
	t.log.Info("Gateway: event poller started", zap.String("queue", t.opts.EventQueue))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := t.rdb.BRPop(ctx, t.opts.PollTimeout, t.opts.EventQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.log.Error("Gateway: event poll failed", zap.Error(err))
			select {
			case t.errs <- transportError("poll events", err):
			default:
			}
			return
		}

		// result[0] is the key, result[1] the payload
		var env Envelope
		if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
			t.log.Warn("Gateway: dropping malformed event", zap.Error(err))
			continue
		}
		t.deliver(ctx, env)
	}
}

func (t *RedisTransport) forwardSubscriptionData(ctx context.Context) {
	defer t.wg.Done()
	ch := t.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.log.Warn("Gateway: dropping malformed subscription data",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if cid, err := CorrelationFromChannel(t.opts.SubscriptionChannel, msg.Channel); err == nil {
				for i := range env.Messages {
					if len(env.Messages[i].CorrelationIDs) == 0 {
						env.Messages[i].CorrelationIDs = []int64{cid}
					}
				}
			}
			t.deliver(ctx, env)
		}
	}
}

func (t *RedisTransport) deliver(ctx context.Context, env Envelope) {
	select {
	case t.events <- env:
	case <-ctx.Done():
	}
}

// RedisEndpoint is the bridge side of the Redis layout. The simulator uses
// it when the gateway transport is "redis".
type RedisEndpoint struct {
	rdb  *redis.Client
	opts RedisOptions
}

func NewRedisEndpoint(rdb *redis.Client, opts RedisOptions) *RedisEndpoint {
	return &RedisEndpoint{rdb: rdb, opts: opts.withDefaults()}
}

func (e *RedisEndpoint) Recv(ctx context.Context) (Command, error) {
	for {
		result, err := e.rdb.BRPop(ctx, e.opts.PollTimeout, e.opts.CommandQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return Command{}, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return Command{}, ctx.Err()
			}
			return Command{}, transportError("poll commands", err)
		}

		var cmd Command
		if err := json.Unmarshal([]byte(result[1]), &cmd); err != nil {
			return Command{}, fmt.Errorf("gateway: decode command: %w", err)
		}
		return cmd, nil
	}
}

// Emit publishes subscription data on the per-correlation channel and queues
// everything else on the event list.
func (e *RedisEndpoint) Emit(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("gateway: marshal event: %w", err)
	}

	if env.EventType == "SUBSCRIPTION_DATA" {
		if cid, ok := firstCorrelationID(env); ok {
			channel := e.opts.SubscriptionChannel + strconv.FormatInt(cid, 10)
			if err := e.rdb.Publish(ctx, channel, data).Err(); err != nil {
				return transportError("publish "+channel, err)
			}
			return nil
		}
	}

	if err := e.rdb.LPush(ctx, e.opts.EventQueue, data).Err(); err != nil {
		return transportError("push event", err)
	}
	return nil
}

func (e *RedisEndpoint) Close() error { return nil }

func firstCorrelationID(env Envelope) (int64, bool) {
	for _, m := range env.Messages {
		if len(m.CorrelationIDs) > 0 {
			return m.CorrelationIDs[0], true
		}
	}
	return 0, false
}

// CorrelationFromChannel extracts the correlation id from a data channel name.
func CorrelationFromChannel(prefix, channel string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(channel, prefix), 10, 64)
}
