package submitter

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/joeycumines/go-utilpkg/longpoll"
)

// RunScheduled drains up to maxBatch messages from the submission queue
// and submits them as one batch. Registered by the scheduler
// either at tick boundaries ("per_tick") or on a fixed interval
// ("interval") — the two strategies share this exact mechanism and differ
// only in how the caller schedules it.
//
// Draining uses longpoll.Channel over a short-lived feed goroutine so a
// partially-filled queue still flushes after PartialTimeout instead of
// blocking indefinitely for maxBatch messages that may never arrive.
func (s *Submitter) RunScheduled(ctx context.Context, checker BatchChecker, maxBatch int) error {
	feed := make(chan *queue.Msg)
	feedErr := make(chan error, 1)

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	go func() {
		defer close(feed)
		for {
			msgs, err := s.SubmissionQueue.Get(feedCtx, 1, 2*time.Second)
			if err != nil {
				select {
				case feedErr <- err:
				default:
				}
				return
			}
			for _, m := range msgs {
				select {
				case feed <- m:
				case <-feedCtx.Done():
					return
				}
			}
			if len(msgs) == 0 {
				// nothing pending right now; this firing is done.
				return
			}
		}
	}()

	var batch []*queue.Msg
	err := longpoll.Channel(ctx, &longpoll.ChannelConfig{
		MaxSize:        maxBatch,
		MinSize:        1,
		PartialTimeout: 200 * time.Millisecond,
	}, feed, func(m *queue.Msg) error {
		batch = append(batch, m)
		return nil
	})
	cancelFeed()

	select {
	case ferr := <-feedErr:
		log.Warnf("submitter: drain feed error: %v", ferr)
	default:
	}

	if err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("submitter: drain error: %v", err)
	}

	return s.submitBatch(ctx, checker, batch)
}
