// Package attackdata implements the attack-data refresher: the component
// that periodically fetches the game's current targeting data, detects
// whether it actually changed, and republishes it for exploits to consume.
package attackdata

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/avalactf/avala/pkg/eventbus"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/wire"
	"golang.org/x/time/rate"
)

// Fetcher retrieves the raw attack data from the game's data source
// (scoreboard, gameserver API, ...). Implementations are operator-supplied.
type Fetcher interface {
	Fetch(ctx context.Context) (wire.AttackData, error)
}

// Processor transforms freshly fetched attack data before it is stored,
// e.g. to resolve team aliases or filter down to relevant services.
// Implementations are operator-supplied; a nil Processor is a no-op.
type Processor interface {
	Process(ctx context.Context, data wire.AttackData) (wire.AttackData, error)
}

// StateStore is the subset of the state store the refresher needs.
type StateStore interface {
	Get(ctx context.Context, key string, v interface{}) (bool, error)
	Put(ctx context.Context, key string, v interface{}) error
}

const stateKey = "attack_data"
const hashStateKey = "attack_data_hash"

// Refresher owns the fetch-normalize-hash-compare-store pipeline run once
// per tick.
type Refresher struct {
	Fetcher     Fetcher
	Processor   Processor
	State       StateStore
	Broadcaster *eventbus.Broadcaster
	Ready       *eventbus.Signal

	// MaxAttempts bounds the fetch retry loop; Limiter paces it.
	MaxAttempts int
	Limiter     *rate.Limiter
}

// NewRefresher wires a Refresher with sane retry defaults.
func NewRefresher(fetcher Fetcher, processor Processor, state StateStore, bc *eventbus.Broadcaster) *Refresher {
	return &Refresher{
		Fetcher:     fetcher,
		Processor:   processor,
		State:       state,
		Broadcaster: bc,
		Ready:       eventbus.NewSignal(),
		MaxAttempts: 5,
		Limiter:     rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Refresh runs one fetch-normalize-hash-compare-store-publish cycle. On a
// fetch failure that exhausts MaxAttempts, it reuses the last known-good
// data rather than failing the tick outright.
func (r *Refresher) Refresh(ctx context.Context) error {
	// Once this cycle's outcome is decided, release everyone waiting on
	// Ready and re-arm it, so later subscribers wait for the next cycle.
	defer func() {
		r.Ready.Set()
		r.Ready.Clear()
	}()

	data, changed, err := r.fetchWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("attackdata: fetch failed after retries, reusing cached data: %w", err)
	}

	if !changed {
		log.Debug("attackdata: unchanged, reusing cached data")
		return nil
	}

	if r.Processor != nil {
		data, err = r.Processor.Process(ctx, data)
		if err != nil {
			return fmt.Errorf("attackdata: process failed: %w", err)
		}
	}

	if err := r.State.Put(ctx, stateKey, data); err != nil {
		return fmt.Errorf("attackdata: persist failed: %w", err)
	}

	if r.Broadcaster != nil {
		counts := map[string]int{}
		for _, svc := range data.ServiceNames() {
			counts[svc] = len(data.Targets(svc))
		}
		r.Broadcaster.Publish("attack_data.updated", counts)
	}

	return nil
}

// fetchWithRetry fetches up to MaxAttempts times, comparing each fetch's
// hash against the last-persisted one in State. An unchanged hash is not
// itself a failure: it keeps retrying (paced by Limiter) in case the
// upstream source is mid-publish, the same way the fetch-error path
// does, and only gives up reusing the old payload once attempts run out.
func (r *Refresher) fetchWithRetry(ctx context.Context) (wire.AttackData, bool, error) {
	var storedHash string
	if _, err := r.State.Get(ctx, hashStateKey, &storedHash); err != nil {
		return wire.AttackData{}, false, fmt.Errorf("attackdata: read stored hash: %w", err)
	}

	var lastErr error
	var lastData wire.AttackData
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.Limiter.Wait(ctx); err != nil {
				return wire.AttackData{}, false, err
			}
		}

		data, err := r.Fetcher.Fetch(ctx)
		if err != nil {
			lastErr = err
			log.Warnf("attackdata: fetch attempt %d/%d failed: %v", attempt+1, r.MaxAttempts, err)
			continue
		}
		lastErr = nil
		lastData = data

		hash, err := hashNormalized(data)
		if err != nil {
			return wire.AttackData{}, false, fmt.Errorf("attackdata: hash failed: %w", err)
		}

		if hash != storedHash {
			if err := r.State.Put(ctx, hashStateKey, hash); err != nil {
				return wire.AttackData{}, false, fmt.Errorf("attackdata: persist hash: %w", err)
			}
			return data, true, nil
		}

		log.Debugf("attackdata: fetch attempt %d/%d unchanged, reusing old attack data", attempt+1, r.MaxAttempts)
	}

	if lastErr != nil {
		return wire.AttackData{}, false, lastErr
	}
	return lastData, false, nil
}

// hashNormalized reproduces the original's normalize_dict-then-md5 change
// detection: recursively sort map keys and slice elements before hashing,
// so key/slice ordering differences alone never register as a change.
func hashNormalized(data wire.AttackData) (string, error) {
	normalized := normalize(data)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

func normalize(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil
	}
	return normalizeGeneric(generic)
}

func normalizeGeneric(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]keyValue, 0, len(keys))
		for _, k := range keys {
			out = append(out, keyValue{Key: k, Value: normalizeGeneric(t[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeGeneric(e)
		}
		sort.Slice(out, func(i, j int) bool {
			bi, _ := json.Marshal(out[i])
			bj, _ := json.Marshal(out[j])
			return string(bi) < string(bj)
		})
		return out
	default:
		return t
	}
}

type keyValue struct {
	Key   string
	Value interface{}
}
