// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue provides the durable, at-least-once, TTL-bearing queues
// used to hand flags between the intake, submitter and persister stages.
//
// The package wraps nats.go's JetStream API with connection management,
// stream/consumer provisioning and per-message TTL, playing the role a
// RabbitMQ queue with message expiration and manual ack/nack would play.
//
// # Configuration
//
//	{
//	  "queue": {
//	    "address": "nats://localhost:4222",
//	    "username": "user",
//	    "password": "secret"
//	  }
//	}
//
// # Usage
//
//	queue.Init(rawConfig)
//	client, err := queue.Connect(nil)
//	q, err := client.Declare("submission_queue")
//	err = q.Put(ctx, payload, 3*time.Minute)
//	msgs, err := q.Get(ctx, 64, 500*time.Millisecond)
//
// # Thread Safety
//
// All Client and Queue methods are safe for concurrent use.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with JetStream stream/consumer management.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	mu   sync.Mutex
	q    map[string]*Queue
}

// Connect dials the configured NATS server and returns a queue Client.
// If cfg is nil, the global Keys config is used.
func Connect(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Keys
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("queue: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("queue: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("queue: reconnected to %s", nc.ConnectedUrl())
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: connect failed: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue: jetstream context failed: %w", err)
	}

	log.Infof("queue: connected to %s", cfg.Address)
	return &Client{conn: nc, js: js, q: make(map[string]*Queue)}, nil
}

// Close closes the underlying NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Conn exposes the underlying NATS connection for pkg/eventbus, which
// publishes on the same connection rather than opening a second one.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Declare ensures a durable, TTL-capable stream and a pull consumer named
// after it exist, and returns a handle to operate on it. Declare is
// idempotent: calling it for a name that already exists is a passive check,
// mirroring the original's passive queue_declare used for size polling.
func (c *Client) Declare(name string) (*Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.q[name]; ok {
		return q, nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   []string{name},
		Storage:    nats.FileStorage,
		Retention:  nats.WorkQueuePolicy,
		AllowMsgTTL: true,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("queue: add stream %q failed: %w", name, err)
	}

	sub, err := c.js.PullSubscribe(name, name, nats.ManualAck(), nats.AckWait(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("queue: pull subscribe %q failed: %w", name, err)
	}

	q := &Queue{name: name, js: c.js, sub: sub}
	c.q[name] = q
	return q, nil
}

// Queue is a durable, at-least-once FIFO queue with optional per-message TTL.
type Queue struct {
	name string
	js   nats.JetStreamContext
	sub  *nats.Subscription
}

// Msg wraps a single delivered message, carrying its ack/nack obligation.
type Msg struct {
	Data []byte
	raw  *nats.Msg
}

// Ack acknowledges successful processing, permanently removing the message.
func (m *Msg) Ack() error {
	return m.raw.Ack()
}

// Nack rejects the message. When requeue is true the broker will redeliver
// it; when false it is dropped, mirroring basic_reject(requeue=...).
func (m *Msg) Nack(requeue bool) error {
	if requeue {
		return m.raw.Nak()
	}
	return m.raw.Term()
}

// Put publishes a payload onto the queue. If ttl is positive, the message
// expires (and is dropped, undelivered) after ttl elapses, reproducing the
// original's pika.BasicProperties(expiration=...) semantics.
func (q *Queue) Put(ctx context.Context, payload []byte, ttl time.Duration) error {
	var opts []nats.PubOpt
	if ttl > 0 {
		opts = append(opts, nats.MsgTTL(ttl))
	}
	_, err := q.js.Publish(q.name, payload, opts...)
	if err != nil {
		return fmt.Errorf("queue: publish to %q failed: %w", q.name, err)
	}
	return nil
}

// Get drains up to max pending messages, waiting at most maxWait for the
// first one to arrive. It returns an empty, non-error slice on timeout.
func (q *Queue) Get(ctx context.Context, max int, maxWait time.Duration) ([]*Msg, error) {
	raw, err := q.sub.Fetch(max, nats.MaxWait(maxWait))
	if err != nil && err != nats.ErrTimeout {
		return nil, fmt.Errorf("queue: fetch from %q failed: %w", q.name, err)
	}
	out := make([]*Msg, 0, len(raw))
	for _, m := range raw {
		out = append(out, &Msg{Data: m.Data, raw: m})
	}
	return out, nil
}

// Size returns the number of messages currently pending in the queue, a
// passive size check equivalent to the original's passive queue_declare.
func (q *Queue) Size(ctx context.Context) (int, error) {
	info, err := q.js.StreamInfo(q.name)
	if err != nil {
		return 0, fmt.Errorf("queue: stream info for %q failed: %w", q.name, err)
	}
	return int(info.State.Msgs), nil
}
