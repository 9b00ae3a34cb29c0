// Package persister implements the persister: the component that drains
// the durable persisting queue on a fixed interval and applies each
// checker verdict to the flag store, so the submitter never blocks on
// database writes.
package persister

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/avalactf/avala/pkg/wire"
)

// FlagStore is the subset of the flag store the persister needs.
type FlagStore interface {
	UpdateResult(ctx context.Context, value string, resp wire.FlagSubmissionResponse) error
}

// Persister applies checker verdicts from the persisting queue to the
// flag store.
type Persister struct {
	Queue *queue.Queue
	Store FlagStore

	// MaxBatch bounds how many verdicts are drained per run.
	MaxBatch int
}

// New wires a Persister around its queue and flag store.
func New(q *queue.Queue, store FlagStore) *Persister {
	return &Persister{Queue: q, Store: store, MaxBatch: 256}
}

// Run drains and applies one batch of verdicts. It is registered as a
// fixed-interval scheduled job, the same role the original's always-on
// persistence consumer played, traded for simpler restart semantics.
func (p *Persister) Run(ctx context.Context) error {
	msgs, err := p.Queue.Get(ctx, p.MaxBatch, 2*time.Second)
	if err != nil {
		return fmt.Errorf("persister: drain failed: %w", err)
	}

	for _, m := range msgs {
		var resp wire.FlagSubmissionResponse
		if err := json.Unmarshal(m.Data, &resp); err != nil {
			log.Warnf("persister: malformed verdict, dropping: %v", err)
			_ = m.Nack(false)
			continue
		}

		if err := p.Store.UpdateResult(ctx, resp.Flag, resp); err != nil {
			log.Warnf("persister: update %q failed, requeuing: %v", resp.Flag, err)
			_ = m.Nack(true)
			continue
		}

		_ = m.Ack()
	}

	return nil
}
