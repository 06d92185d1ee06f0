package engine

import (
	"sync"
	"time"

	"emsxbridge.com/internal/emsx"
)

// TopicState is what the blotter has seen on one subscription.
type TopicState struct {
	Updates       int64     `json:"Updates"`
	Heartbeats    int64     `json:"Heartbeats"`
	LastUpdate    time.Time `json:"LastUpdate,omitempty"`
	LastHeartbeat time.Time `json:"LastHeartbeat,omitempty"`
	Painted       bool      `json:"Painted"`
}

// SubscriptionState holds the liveness of the order and route subscriptions.
type SubscriptionState struct {
	mu     sync.RWMutex
	topics map[emsx.TopicKind]*TopicState
	now    func() time.Time
}

func NewSubscriptionState() *SubscriptionState {
	return &SubscriptionState{
		topics: make(map[emsx.TopicKind]*TopicState),
		now:    time.Now,
	}
}

func (s *SubscriptionState) topic(kind emsx.TopicKind) *TopicState {
	t, ok := s.topics[kind]
	if !ok {
		t = &TopicState{}
		s.topics[kind] = t
	}
	return t
}

func (s *SubscriptionState) RecordUpdate(kind emsx.TopicKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.topic(kind)
	t.Updates++
	t.LastUpdate = s.now()
}

func (s *SubscriptionState) RecordEndOfPaint(kind emsx.TopicKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic(kind).Painted = true
}

func (s *SubscriptionState) RecordHeartbeat(kind emsx.TopicKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.topic(kind)
	t.Heartbeats++
	t.LastHeartbeat = s.now()
}

// Snapshot returns a copy of every topic seen so far.
func (s *SubscriptionState) Snapshot() map[emsx.TopicKind]TopicState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[emsx.TopicKind]TopicState, len(s.topics))
	for kind, t := range s.topics {
		out[kind] = *t
	}
	return out
}

// Stale reports whether no traffic at all arrived on kind within maxAge.
func (s *SubscriptionState) Stale(kind emsx.TopicKind, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[kind]
	if !ok {
		return true
	}
	last := t.LastUpdate
	if t.LastHeartbeat.After(last) {
		last = t.LastHeartbeat
	}
	return s.now().Sub(last) > maxAge
}
