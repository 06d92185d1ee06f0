package session

import (
	"errors"
	"fmt"
)

var ErrUnknownOperation = errors.New("session: unknown operation")

// Service is an opened vendor service.
type Service struct {
	name       string
	operations map[string]bool
}

func newService(name string, operations []string) *Service {
	s := &Service{name: name}
	if len(operations) > 0 {
		s.operations = make(map[string]bool, len(operations))
		for _, op := range operations {
			s.operations[op] = true
		}
	}
	return s
}

func (s *Service) Name() string { return s.name }

// CreateRequest returns an empty request for operation. When the service
// advertised its operations, anything else is rejected.
func (s *Service) CreateRequest(operation string) (*Request, error) {
	if operation == "" {
		return nil, fmt.Errorf("%w: empty operation on %s", ErrUnknownOperation, s.name)
	}
	if s.operations != nil && !s.operations[operation] {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownOperation, operation, s.name)
	}
	return &Request{service: s, operation: operation, elements: NewElement(operation)}, nil
}

type Request struct {
	service   *Service
	operation string
	elements  *Element
}

func (r *Request) Service() *Service  { return r.service }
func (r *Request) Operation() string  { return r.operation }
func (r *Request) Elements() *Element { return r.elements }
func (r *Request) String() string     { return r.elements.String() }

type SubscriptionStatus int

const (
	SubscriptionPending SubscriptionStatus = iota
	SubscriptionActive
	SubscriptionFailed
	SubscriptionEnded
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionPending:
		return "PENDING"
	case SubscriptionActive:
		return "STARTED"
	case SubscriptionFailed:
		return "FAILED"
	case SubscriptionEnded:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// Subscription is one topic to subscribe to. A zero CorrelationID is
// replaced with a fresh one by Session.Subscribe.
type Subscription struct {
	Topic         string
	CorrelationID CorrelationID
}

func NewSubscription(topic string, cid CorrelationID) *Subscription {
	return &Subscription{Topic: topic, CorrelationID: cid}
}
