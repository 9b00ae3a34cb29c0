// Package intake implements flag intake: the POST /flags/queue handler's
// business logic, deduplicating incoming flag values against the flag
// store inside a single transaction, enqueuing only the newly accepted
// ones onto the submission queue.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/avalactf/avala/pkg/eventbus"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/metrics"
	"github.com/avalactf/avala/pkg/queue"
)

// FlagStore is the subset of the flag store intake needs.
type FlagStore interface {
	Enqueue(ctx context.Context, exploit, target, player string, tick int, values []string) (accepted, discarded []string, err error)
}

// TickSource reports the current tick number at call time.
type TickSource func() int

// Intake accepts submitted flags, dedups them, and forwards new ones to
// the submission queue.
type Intake struct {
	Store           FlagStore
	SubmissionQueue *queue.Queue
	Broadcaster     *eventbus.Broadcaster
	Tick            TickSource
	FlagTTL         time.Duration
}

// Result is the partition of submitted flags into accepted and discarded.
type Result struct {
	Enqueued  []string
	Discarded []string
}

// Enqueue runs the full intake pipeline for one batch of flags submitted
// by player for a single exploit/target pair.
func (in *Intake) Enqueue(ctx context.Context, player, exploit, target string, values []string) (Result, error) {
	tick := in.Tick()

	accepted, discarded, err := in.Store.Enqueue(ctx, exploit, target, player, tick, values)
	if err != nil {
		return Result{}, fmt.Errorf("intake: enqueue failed: %w", err)
	}

	for _, v := range accepted {
		if err := in.SubmissionQueue.Put(ctx, []byte(v), in.FlagTTL); err != nil {
			// A failed broker publish does not roll back the DB insert: the
			// flag's row stays "queued" in the flag store. Nothing
			// republishes it to the submission queue afterwards.
			log.Warnf("intake: publish %q to submission queue failed, row stays queued: %v", v, err)
		}
	}

	if in.Broadcaster != nil {
		in.Broadcaster.Publish("flags.intake", map[string]int{
			"enqueued":  len(accepted),
			"discarded": len(discarded),
		})
	}

	metrics.FlagsQueued.WithLabelValues(exploit).Add(float64(len(accepted)))
	metrics.FlagsDiscarded.WithLabelValues(exploit).Add(float64(len(discarded)))

	log.Infof("intake: player=%s exploit=%s target=%s enqueued=%d discarded=%d",
		player, exploit, target, len(accepted), len(discarded))

	return Result{Enqueued: accepted, Discarded: discarded}, nil
}
