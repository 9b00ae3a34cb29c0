// Package submitter implements the four flag-submission pacing
// strategies: per_tick, interval, batch_size and streams. All four drain
// the durable submission queue and hand flags to an operator-supplied
// checker client, then forward the verdict onto the persisting queue for
// the persister to apply to the flag store.
package submitter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avalactf/avala/pkg/eventbus"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/metrics"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/avalactf/avala/pkg/wire"
)

// BatchChecker submits many flags to the checker service in one round
// trip. Used by the per_tick, interval and batch_size strategies.
type BatchChecker interface {
	Submit(ctx context.Context, flags []string) ([]wire.FlagSubmissionResponse, error)
}

// StreamChecker submits flags one at a time over a long-lived connection,
// with explicit Prepare/Cleanup hooks bracketing its lifetime. Used by the
// streams strategy, one instance per worker.
type StreamChecker interface {
	Prepare(ctx context.Context) error
	Submit(ctx context.Context, flag string) (wire.FlagSubmissionResponse, error)
	Cleanup(ctx context.Context) error
}

// Submitter holds the collaborators shared by every pacing strategy.
type Submitter struct {
	SubmissionQueue *queue.Queue
	PersistQueue    *queue.Queue
	Broadcaster     *eventbus.Broadcaster
}

// New wires a Submitter around its two durable queues.
func New(submission, persist *queue.Queue, bc *eventbus.Broadcaster) *Submitter {
	return &Submitter{SubmissionQueue: submission, PersistQueue: persist, Broadcaster: bc}
}

// submitBatch sends msgs to checker, acks or nacks each message based on
// its verdict, and forwards every verdict onto the persisting queue.
func (s *Submitter) submitBatch(ctx context.Context, checker BatchChecker, msgs []*queue.Msg) error {
	if len(msgs) == 0 {
		return nil
	}

	flags := make([]string, len(msgs))
	byValue := make(map[string]*queue.Msg, len(msgs))
	for i, m := range msgs {
		flags[i] = string(m.Data)
		byValue[string(m.Data)] = m
	}

	responses, err := checker.Submit(ctx, flags)
	if err != nil {
		log.Warnf("submitter: batch submit failed, requeuing %d flags: %v", len(msgs), err)
		for _, m := range msgs {
			_ = m.Nack(true)
		}
		return fmt.Errorf("submitter: submit failed: %w", err)
	}

	counts := map[string]int{}
	seen := make(map[string]bool, len(responses))
	for _, resp := range responses {
		seen[resp.Flag] = true
		msg, ok := byValue[resp.Flag]
		if !ok {
			continue
		}
		s.finish(ctx, msg, resp)
		counts[resp.Status]++
	}
	for flag, msg := range byValue {
		if !seen[flag] {
			// Checker didn't return a verdict for this flag: treat it as
			// dropped and requeue rather than silently losing it.
			_ = msg.Nack(true)
			counts[wire.StatusRequeued]++
		}
	}

	if s.Broadcaster != nil {
		s.Broadcaster.Publish("submitter.batch", counts)
	}
	return nil
}

// finish forwards msg's verdict to the persisting queue and only then
// acks/nacks it. Publishing before acking means a crash between the two
// leaves the submission message redelivered (and the verdict persisted
// twice, harmlessly, since UpdateResult sets the same columns on the row
// with that value) rather
// than silently losing the verdict, which an ack-then-publish ordering
// risks if the publish itself fails.
func (s *Submitter) finish(ctx context.Context, msg *queue.Msg, resp wire.FlagSubmissionResponse) {
	if resp.Status == wire.StatusRequeued {
		_ = msg.Nack(true)
		return
	}
	if resp.Status != wire.StatusAccepted && resp.Status != wire.StatusRejected {
		_ = msg.Nack(false)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Warnf("submitter: marshal verdict for %q failed: %v", resp.Flag, err)
		_ = msg.Nack(true)
		return
	}
	if err := s.PersistQueue.Put(ctx, payload, 0); err != nil {
		log.Warnf("submitter: forwarding verdict for %q to persist queue failed: %v", resp.Flag, err)
		_ = msg.Nack(true)
		return
	}

	_ = msg.Ack()
	if resp.Status == wire.StatusAccepted {
		metrics.FlagsAccepted.Inc()
	} else {
		metrics.FlagsRejected.Inc()
	}
}
