package submitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/avalactf/avala/pkg/wire"
)

// maxStreamAttempts bounds the per-flag cleanup/prepare/retry loop before
// a streams worker gives up and stops with an error; the other workers
// keep running.
const maxStreamAttempts = 10

// RunStreams launches workers parallel StreamChecker connections, each
// pulling from the submission queue independently and submitting flags
// one at a time over its own long-lived connection.
func (s *Submitter) RunStreams(ctx context.Context, newChecker func() (StreamChecker, error), workers int) error {
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if err := s.runStreamWorker(ctx, worker, newChecker); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) runStreamWorker(ctx context.Context, worker int, newChecker func() (StreamChecker, error)) error {
	checker, err := newChecker()
	if err != nil {
		return fmt.Errorf("submitter: stream worker %d: new checker: %w", worker, err)
	}
	if err := checker.Prepare(ctx); err != nil {
		return fmt.Errorf("submitter: stream worker %d: prepare: %w", worker, err)
	}
	defer checker.Cleanup(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := s.SubmissionQueue.Get(ctx, 1, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("submitter: stream worker %d: fetch failed: %v", worker, err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		resp, ok := s.submitWithRetry(ctx, checker, worker, string(msg.Data))
		if !ok {
			// Attempts exhausted: this worker stops; the message is left
			// unacked for the broker to redeliver.
			log.Critf("submitter: stream worker %d: giving up on %q after %d attempts, exiting", worker, string(msg.Data), maxStreamAttempts)
			return fmt.Errorf("submitter: stream worker %d exhausted retries", worker)
		}

		s.finish(ctx, msg, resp)
	}
}

func (s *Submitter) submitWithRetry(ctx context.Context, checker StreamChecker, worker int, flag string) (wire.FlagSubmissionResponse, bool) {
	for attempt := 1; attempt <= maxStreamAttempts; attempt++ {
		resp, err := checker.Submit(ctx, flag)
		if err == nil {
			return resp, true
		}

		log.Warnf("submitter: stream worker %d: submit %q attempt %d/%d failed: %v", worker, flag, attempt, maxStreamAttempts, err)
		_ = checker.Cleanup(ctx)
		if perr := checker.Prepare(ctx); perr != nil {
			log.Warnf("submitter: stream worker %d: reconnect failed: %v", worker, perr)
		}
	}
	return wire.FlagSubmissionResponse{}, false
}
