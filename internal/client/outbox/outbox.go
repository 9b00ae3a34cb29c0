// Package outbox drains flag batches recorded locally by the scheduler
// into the server, retrying on the next heartbeat if the server was
// unreachable. It is what lets an exploit run survive a flaky connection
// to the game server without losing discovered flags.
package outbox

import (
	"context"
	"fmt"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/wire"
)

// Store is the durable backing store for pending batches.
type Store interface {
	Add(ctx context.Context, service, exploitAlias, target string, tick int, flagIDs []string) (int64, error)
	All(ctx context.Context, limit int) ([]PendingFlagRow, error)
	Remove(ctx context.Context, id int64) error
}

// PendingFlagRow mirrors localstore.PendingFlag to avoid outbox importing
// the localstore package directly.
type PendingFlagRow struct {
	ID      int64
	Service string
	Exploit string
	Target  string
	Tick    int
	FlagIDs []string
}

// Submitter is the server connection used to drain pending batches.
type Submitter interface {
	Enqueue(ctx context.Context, exploitAlias, target string, flagIDs []string) (wire.EnqueueResponse, error)
}

// Outbox durably queues discovered flags and drains them to the server.
type Outbox struct {
	Store     Store
	Submitter Submitter
}

// New builds an Outbox.
func New(store Store, submitter Submitter) *Outbox {
	return &Outbox{Store: store, Submitter: submitter}
}

// Record durably stores a newly discovered batch for later draining. It
// never blocks on network access — the scheduler calls this synchronously
// right after an exploit run completes.
func (o *Outbox) Record(ctx context.Context, service, exploitAlias, target string, tick int, flagIDs []string) error {
	if len(flagIDs) == 0 {
		return nil
	}
	if _, err := o.Store.Add(ctx, service, exploitAlias, target, tick, flagIDs); err != nil {
		return fmt.Errorf("outbox: record: %w", err)
	}
	return nil
}

// Drain attempts to submit every pending batch, removing each one the
// server accepts. A batch that fails to submit is left in place for the
// next heartbeat; Drain keeps going and reports the last error seen.
func (o *Outbox) Drain(ctx context.Context, maxBatches int) (drained int, err error) {
	pending, err := o.Store.All(ctx, maxBatches)
	if err != nil {
		return 0, fmt.Errorf("outbox: list pending: %w", err)
	}

	var lastErr error
	for _, p := range pending {
		if _, submitErr := o.Submitter.Enqueue(ctx, p.Exploit, p.Target, p.FlagIDs); submitErr != nil {
			log.Warnf("outbox: submit batch %d (%s/%s) failed, will retry: %v", p.ID, p.Exploit, p.Target, submitErr)
			lastErr = submitErr
			continue
		}
		if err := o.Store.Remove(ctx, p.ID); err != nil {
			log.Errorf("outbox: batch %d submitted but could not be removed locally: %v", p.ID, err)
			continue
		}
		drained++
	}
	return drained, lastErr
}
