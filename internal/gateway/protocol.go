// Package gateway carries session traffic between this client and the
// vendor-side bridge that owns the real EMSX session.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
)

var (
	ErrClosed  = errors.New("gateway: closed")
	ErrTimeout = errors.New("gateway: timeout")
)

// transportError wraps a transport failure, marking deadline and network
// timeouts with ErrTimeout.
func transportError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("gateway: %s: %w", op, err)
}

// Command types sent from Go to the bridge.
const (
	CmdStartSession = "START_SESSION"
	CmdOpenService  = "OPEN_SERVICE"
	CmdSubscribe    = "SUBSCRIBE"
	CmdUnsubscribe  = "UNSUBSCRIBE"
	CmdSendRequest  = "SEND_REQUEST"
	CmdStopSession  = "STOP_SESSION"
)

// Command is a single instruction for the bridge.
type Command struct {
	Type          string          `json:"Type"`
	RequestID     string          `json:"RequestID"`
	CorrelationID int64           `json:"CorrelationID,omitempty"`
	Service       string          `json:"Service,omitempty"`
	Topic         string          `json:"Topic,omitempty"`
	Operation     string          `json:"Operation,omitempty"`
	Payload       json.RawMessage `json:"Payload,omitempty"`
}

// NewCommand returns a command of the given type with a fresh RequestID.
func NewCommand(typ string) Command {
	return Command{Type: typ, RequestID: uuid.NewString()}
}

// Envelope is one event delivered by the bridge. EventType uses the
// SESSION_STATUS / SUBSCRIPTION_DATA / RESPONSE spelling.
type Envelope struct {
	EventType string        `json:"EventType"`
	Messages  []WireMessage `json:"Messages"`
}

type WireMessage struct {
	MessageType    string          `json:"MessageType"`
	CorrelationIDs []int64         `json:"CorrelationIDs,omitempty"`
	Fields         json.RawMessage `json:"Fields,omitempty"`
}

// Transport is the client side of the bridge.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
	Receive(ctx context.Context) (Envelope, error)
	Close() error
}

// Endpoint is the vendor side of the bridge. The simulator serves on it.
type Endpoint interface {
	Recv(ctx context.Context) (Command, error)
	Emit(ctx context.Context, env Envelope) error
	Close() error
}
