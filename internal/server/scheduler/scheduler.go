// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler wires the server's gocron jobs: the attack-data
// refresher, the persister's periodic drain, and (for the per_tick and
// interval submitter strategies) the submission drain itself.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/avalactf/avala/internal/config"
	"github.com/avalactf/avala/internal/server/attackdata"
	"github.com/avalactf/avala/internal/server/persister"
	"github.com/avalactf/avala/internal/server/submitter"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/metrics"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/avalactf/avala/pkg/tick"
	"github.com/go-co-op/gocron/v2"
)

// Scheduler owns the gocron instance driving every periodic component.
type Scheduler struct {
	s     gocron.Scheduler
	Clock tick.Clock
}

// New creates the underlying gocron scheduler.
func New(clock tick.Clock) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: could not create gocron scheduler: %w", err)
	}
	return &Scheduler{s: s, Clock: clock}, nil
}

// safe wraps a job body so a panic in operator-supplied code (fetcher,
// processor, checker) never crashes the scheduler goroutine.
func safe(name string, fn func(ctx context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Critf("scheduler: job %q panicked: %v", name, r)
			}
		}()
		if err := fn(context.Background()); err != nil {
			log.Errorf("scheduler: job %q failed: %v", name, err)
		}
	}
}

// RegisterAttackDataRefresh schedules the refresher once per tick.
func (sch *Scheduler) RegisterAttackDataRefresh(r *attackdata.Refresher) error {
	_, err := sch.s.NewJob(
		gocron.DurationJob(sch.Clock.TickDuration),
		gocron.NewTask(safe("attack-data-refresh", r.Refresh)),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register attack-data refresh: %w", err)
	}
	return nil
}

// RegisterPersister schedules the persister's periodic drain.
func (sch *Scheduler) RegisterPersister(p *persister.Persister, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	_, err := sch.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(safe("persister", p.Run)),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register persister: %w", err)
	}
	return nil
}

// RegisterSubmitterScheduled schedules a per_tick or interval submitter
// drain. per_tick fires once per tick, starting at the next tick
// boundary; interval fires every cfg.Interval (the tick duration when
// unset). Both strategies use the identical underlying job shape.
func (sch *Scheduler) RegisterSubmitterScheduled(s *submitter.Submitter, checker submitter.BatchChecker, cfg config.SubmitterConfig) error {
	interval := cfg.Interval.AsDuration()
	if cfg.Strategy == "per_tick" || interval <= 0 {
		interval = sch.Clock.TickDuration
	}
	maxBatch := cfg.BatchSize
	if maxBatch <= 0 {
		maxBatch = 256
	}

	var opts []gocron.JobOption
	if cfg.Strategy == "per_tick" {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartDateTime(sch.Clock.NextStart(time.Now()))))
	}
	_, err := sch.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(safe("submitter-scheduled", func(ctx context.Context) error {
			return s.RunScheduled(ctx, checker, maxBatch)
		})),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("scheduler: register submitter: %w", err)
	}
	return nil
}

// RegisterTickGauge keeps pkg/metrics.CurrentTick in sync every second.
func (sch *Scheduler) RegisterTickGauge() error {
	_, err := sch.s.NewJob(
		gocron.DurationJob(time.Second),
		gocron.NewTask(func() {
			metrics.CurrentTick.Set(float64(sch.Clock.Number(time.Now())))
		}),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register tick gauge: %w", err)
	}
	return nil
}

// RegisterQueueDepthGauge keeps pkg/metrics.SubmissionQueueDepth in sync
// with the submission queue's pending message count.
func (sch *Scheduler) RegisterQueueDepthGauge(q *queue.Queue, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	_, err := sch.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(safe("queue-depth-gauge", func(ctx context.Context) error {
			n, err := q.Size(ctx)
			if err != nil {
				return fmt.Errorf("queue size: %w", err)
			}
			metrics.SubmissionQueueDepth.Set(float64(n))
			return nil
		})),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register queue depth gauge: %w", err)
	}
	return nil
}

// Start begins running all registered jobs.
func (sch *Scheduler) Start() {
	sch.s.Start()
}

// Shutdown stops the scheduler, waiting for in-flight jobs to finish.
func (sch *Scheduler) Shutdown() error {
	return sch.s.Shutdown()
}
