package submitter

import (
	"context"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/joeycumines/go-utilpkg/microbatch"
)

// batchJob pairs a delivered message with the flag value it carries.
type batchJob struct {
	msg  *queue.Msg
	flag string
}

// RunBatchSize continuously consumes the submission queue and feeds a
// microbatch.Batcher configured to flush once batchSize jobs have
// accumulated, mirroring the original's streaming buffer-fill-then-flush
// consumer. It runs until ctx is canceled.
func (s *Submitter) RunBatchSize(ctx context.Context, checker BatchChecker, batchSize int, flushInterval time.Duration) error {
	batcher := microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       batchSize,
		FlushInterval: flushInterval,
		MaxConcurrency: 4,
	}, func(ctx context.Context, jobs []*batchJob) error {
		msgs := make([]*queue.Msg, len(jobs))
		for i, j := range jobs {
			msgs[i] = j.msg
		}
		return s.submitBatch(ctx, checker, msgs)
	})
	defer batcher.Close()

	for {
		msgs, err := s.SubmissionQueue.Get(ctx, 1, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("submitter: batch_size fetch failed: %v", err)
			continue
		}
		for _, m := range msgs {
			job := &batchJob{msg: m, flag: string(m.Data)}
			result, err := batcher.Submit(ctx, job)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warnf("submitter: batch_size submit failed: %v", err)
				_ = m.Nack(true)
				continue
			}
			go func(r *microbatch.JobResult[*batchJob]) {
				if err := r.Wait(context.Background()); err != nil {
					log.Warnf("submitter: batch_size processing failed: %v", err)
				}
			}(result)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
