// Package scheduler is the client's gocron-driven tick loop: for every
// tick it runs each loaded, non-draft exploit against the targets its
// strategy resolves, records discovered flags in the outbox, and on a
// separate heartbeat drains the outbox to the server.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avalactf/avala/internal/client/dedup"
	"github.com/avalactf/avala/internal/client/executor"
	"github.com/avalactf/avala/internal/client/exploit"
	"github.com/avalactf/avala/internal/client/outbox"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/tick"
	"github.com/avalactf/avala/pkg/wire"
	"github.com/go-co-op/gocron/v2"
)

// AttackDataSource gives the scheduler the latest attack-data payload.
// Implementations should serve a locally cached copy and refresh it in
// the background (see internal/client/apiclient.Client.AttackDataSubscribe).
type AttackDataSource interface {
	Current() wire.AttackData
}

// Scheduler drives every loaded exploit on the game's tick cadence.
type Scheduler struct {
	s        gocron.Scheduler
	Clock    tick.Clock
	Game     wire.GameInfo
	Executor *executor.Executor
	Dedup    *dedup.Ledger
	Outbox   *outbox.Outbox
	Data     AttackDataSource

	mu       sync.RWMutex
	exploits map[string]*exploit.Exploit
}

// New builds a Scheduler.
func New(clock tick.Clock, game wire.GameInfo, ex *executor.Executor, ledger *dedup.Ledger, ob *outbox.Outbox, data AttackDataSource) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}
	return &Scheduler{
		s: s, Clock: clock, Game: game, Executor: ex, Dedup: ledger, Outbox: ob, Data: data,
		exploits: make(map[string]*exploit.Exploit),
	}, nil
}

func safe(name string, fn func(ctx context.Context)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Critf("scheduler: job %q panicked: %v", name, r)
			}
		}()
		fn(context.Background())
	}
}

// LoadDir scans dir for exploit config files (one JSON document per
// exploit) and replaces the currently loaded set, mirroring the original's
// directory watch that re-registered decorated exploit functions on change.
func (sch *Scheduler) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scheduler: read exploits dir %s: %w", dir, err)
	}

	loaded := make(map[string]*exploit.Exploit)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := loadExploitConfig(path)
		if err != nil {
			log.Errorf("scheduler: skipping %s: %v", path, err)
			continue
		}
		e, err := exploit.New(cfg)
		if err != nil {
			log.Errorf("scheduler: invalid exploit %s: %v", path, err)
			continue
		}
		loaded[e.Config.Alias] = e
	}

	sch.mu.Lock()
	sch.exploits = loaded
	sch.mu.Unlock()
	log.Infof("scheduler: loaded %d exploits from %s", len(loaded), dir)
	return nil
}

// RegisterExploits schedules one recurring job per loaded, non-draft
// exploit, each on its own tick-aligned cadence. Draft exploits are loaded
// (so they can be triggered manually) but never auto-scheduled.
func (sch *Scheduler) RegisterExploits() error {
	sch.mu.RLock()
	defer sch.mu.RUnlock()

	for alias, e := range sch.exploits {
		if e.Config.IsDraft {
			log.Infof("scheduler: %s is a draft, not auto-scheduling", alias)
			continue
		}
		e := e
		_, err := sch.s.NewJob(
			gocron.DurationJob(sch.Clock.TickDuration),
			gocron.NewTask(safe("exploit:"+alias, func(ctx context.Context) {
				sch.RunExploit(ctx, e)
			})),
			gocron.WithStartAt(gocron.WithStartDateTime(sch.Clock.NextStart(time.Now()))),
		)
		if err != nil {
			return fmt.Errorf("scheduler: register %s: %w", alias, err)
		}
	}
	return nil
}

// RegisterHeartbeat schedules the outbox drain on a fixed interval,
// independent of the game's tick duration so a stalled server connection
// does not block exploit scheduling.
func (sch *Scheduler) RegisterHeartbeat(interval time.Duration, maxBatches int) error {
	_, err := sch.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(safe("heartbeat", func(ctx context.Context) {
			drained, err := sch.Outbox.Drain(ctx, maxBatches)
			if err != nil {
				log.Warnf("scheduler: heartbeat drain: %v", err)
			}
			if drained > 0 {
				log.Infof("scheduler: heartbeat drained %d pending batches", drained)
			}
		})),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register heartbeat: %w", err)
	}
	return nil
}

// RunExploit resolves targets for e, runs it (respecting Batching and
// Workers), and records any new flag ids in the outbox after deduping.
func (sch *Scheduler) RunExploit(ctx context.Context, e *exploit.Exploit) {
	tickNumber := sch.Clock.Number(time.Now())
	targets := sch.resolveTargets(e)
	if len(targets) == 0 {
		return
	}

	if e.Config.Delay > 0 {
		time.Sleep(e.Config.Delay)
	}

	batches := batchTargets(targets, e.Config.Batching)
	sem := make(chan struct{}, e.Config.Workers)
	var wg sync.WaitGroup

	for i, batch := range batches {
		if i > 0 && e.Config.Batching.Gap > 0 {
			time.Sleep(e.Config.Batching.Gap)
		}
		for _, target := range batch {
			target := target
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				sch.runOne(ctx, e, target, tickNumber)
			}()
		}
	}
	wg.Wait()
}

func (sch *Scheduler) runOne(ctx context.Context, e *exploit.Exploit, target string, tickNumber int) {
	flagIDs := sch.flagIDsFor(e, target, tickNumber)
	if len(flagIDs) == 0 {
		return
	}

	// Fingerprint the attack-data input (alias, target, tick-scoped flag
	// ids) before running anything, and skip the attack outright if this
	// exact combination was already attempted: re-running the same
	// exploit against the same target for flag ids it has already
	// consumed cannot discover anything new.
	fingerprint := dedup.Fingerprint(e.Config.Alias, target, flagIDs)
	duplicate, err := sch.Dedup.Seen(ctx, fingerprint)
	if err != nil {
		log.Errorf("scheduler: dedup check for %s/%s: %v", e.Config.Alias, target, err)
	}
	if duplicate {
		return
	}

	flagIDsPath, cleanup, err := writeFlagIDsFile(flagIDs)
	if err != nil {
		log.Errorf("scheduler: %s/%s: %v", e.Config.Alias, target, err)
		return
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, e.Config.Timeout)
	defer cancel()

	result := sch.Executor.Run(ctx, e.Config, target, flagIDsPath)
	if result.Err != nil {
		log.Warnf("scheduler: %s against %s failed: %v", e.Config.Alias, target, result.Err)
		return
	}

	if err := sch.Dedup.Record(ctx, fingerprint, e.Config.Alias, target); err != nil {
		log.Errorf("scheduler: dedup record for %s/%s: %v", e.Config.Alias, target, err)
	}

	if len(result.FlagIDs) == 0 {
		return
	}
	if err := sch.Outbox.Record(ctx, e.Config.Service, e.Config.Alias, target, tickNumber, result.FlagIDs); err != nil {
		log.Errorf("scheduler: record %s/%s: %v", e.Config.Alias, target, err)
	}
}

// resolveTargets applies the exploit's TargetingStrategy against the
// current attack-data payload's target list, excluding own/nop teams
// exactly as the original's auto strategy did.
func (sch *Scheduler) resolveTargets(e *exploit.Exploit) []string {
	data := sch.Data.Current()
	all := data.Targets(e.Config.Service)

	switch e.Config.Targets {
	case exploit.NopTeam:
		return intersect(all, sch.Game.NopTeamIP)
	case exploit.OwnTeam:
		return intersect(all, sch.Game.TeamIP)
	default: // Auto
		return subtract(all, append(append([]string{}, sch.Game.TeamIP...), sch.Game.NopTeamIP...))
	}
}

func (sch *Scheduler) flagIDsFor(e *exploit.Exploit, target string, tickNumber int) []string {
	data := sch.Data.Current()
	if e.Config.TickScope == exploit.SingleTick {
		return data.FlagIDs(e.Config.Service, target, tickNumber)
	}

	from := tickNumber - e.Config.LastN + 1
	if from < 0 {
		from = 0
	}
	var out []string
	for t := from; t <= tickNumber; t++ {
		if skip(e.Config.Skip, t) {
			continue
		}
		out = append(out, data.FlagIDs(e.Config.Service, target, t)...)
	}
	return out
}

func skip(skipList []int, tick int) bool {
	for _, s := range skipList {
		if s == tick {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func batchTargets(targets []string, b exploit.Batching) [][]string {
	size := b.Size
	if size <= 0 && b.Count > 0 {
		size = (len(targets) + b.Count - 1) / b.Count
	}
	if size <= 0 {
		size = len(targets)
	}
	if size == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(targets); i += size {
		end := i + size
		if end > len(targets) {
			end = len(targets)
		}
		out = append(out, targets[i:end])
	}
	return out
}

// Start begins running all registered jobs.
func (sch *Scheduler) Start() { sch.s.Start() }

// Shutdown stops the scheduler, waiting for in-flight jobs to finish.
func (sch *Scheduler) Shutdown() error { return sch.s.Shutdown() }
