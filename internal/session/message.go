package session

import (
	"fmt"
	"strings"
)

// Message names produced by the session layer itself.
const (
	SessionStarted             = "SessionStarted"
	SessionStartupFailure      = "SessionStartupFailure"
	SessionTerminated          = "SessionTerminated"
	SessionConnectionUp        = "SessionConnectionUp"
	SessionConnectionDown      = "SessionConnectionDown"
	ServiceOpened              = "ServiceOpened"
	ServiceOpenFailure         = "ServiceOpenFailure"
	SubscriptionStarted        = "SubscriptionStarted"
	SubscriptionFailure        = "SubscriptionFailure"
	SubscriptionTerminated     = "SubscriptionTerminated"
	SlowConsumerWarning        = "SlowConsumerWarning"
	SlowConsumerWarningCleared = "SlowConsumerWarningCleared"
	RequestFailure             = "RequestFailure"
)

type Message struct {
	Type           string
	CorrelationIDs []CorrelationID
	Elements       *Element
}

// NewMessage returns a message whose element tree is named after its type.
func NewMessage(typ string, cids ...CorrelationID) *Message {
	return &Message{Type: typ, CorrelationIDs: cids, Elements: NewElement(typ)}
}

// CorrelationID returns the first correlation id, or 0 if there is none.
func (m *Message) CorrelationID() CorrelationID {
	if len(m.CorrelationIDs) == 0 {
		return 0
	}
	return m.CorrelationIDs[0]
}

func (m *Message) String() string {
	var sb strings.Builder
	if len(m.CorrelationIDs) > 0 {
		ids := make([]string, len(m.CorrelationIDs))
		for i, c := range m.CorrelationIDs {
			ids[i] = c.String()
		}
		fmt.Fprintf(&sb, "CorrelationID: [%s]\n", strings.Join(ids, ", "))
	}
	sb.WriteString(m.Elements.String())
	return sb.String()
}
