// Package eventbus implements Avala's two notification planes: a
// broadcast plane exposing live pipeline counters to anything listening
// on the NATS connection (dashboards, operators), and an in-process
// signal plane letting goroutines within one binary wait for "new attack
// data is ready" without polling.
package eventbus

import (
	"encoding/json"
	"sync"

	"github.com/avalactf/avala/pkg/log"
	"github.com/nats-io/nats.go"
)

// CounterDelta is broadcast on the attack-data / submission subjects
// whenever the pipeline's bookkeeping changes, for dashboards to consume.
type CounterDelta struct {
	Subject string         `json:"subject"`
	Counts  map[string]int `json:"counts"`
}

// Broadcaster publishes CounterDelta messages on the shared NATS connection.
type Broadcaster struct {
	conn *nats.Conn
}

// NewBroadcaster wraps an established NATS connection for counter broadcast.
func NewBroadcaster(conn *nats.Conn) *Broadcaster {
	return &Broadcaster{conn: conn}
}

// Publish broadcasts a counter delta on subject. Failures are logged, not
// propagated: the broadcast plane is best-effort and must never block or
// fail the pipeline operation that triggered it.
func (b *Broadcaster) Publish(subject string, counts map[string]int) {
	if b == nil || b.conn == nil {
		return
	}
	data, err := json.Marshal(CounterDelta{Subject: subject, Counts: counts})
	if err != nil {
		log.Warnf("eventbus: marshal counter delta failed: %v", err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Warnf("eventbus: publish to %q failed: %v", subject, err)
	}
}

// Signal is a level-triggered, single-shot event: goroutines can Wait for
// it and be released the moment it is Set, mirroring asyncio.Event's
// Clear/Set/Wait trio used by the original attack-data refresher.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal returns a Signal in the cleared state.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set releases every current and future Wait call until Clear is next
// called.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
		// already set
	default:
		close(s.ch)
	}
}

// Clear resets the signal to the unset state.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
		s.ch = make(chan struct{})
	default:
	}
}

// Wait returns a channel that is closed once the signal becomes set.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
