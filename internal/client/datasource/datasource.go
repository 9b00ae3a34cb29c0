// Package datasource keeps a locally cached copy of the server's current
// attack-data payload fresh, long-polling /attack-data/subscribe in the
// background and falling back to the last cached copy (via
// internal/client/localstore.ObjectStore) whenever the server is
// unreachable, mirroring the original client's storage.BlobStorage-backed
// offline fallback.
package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/wire"
)

const cacheKey = "attack_data"

// Subscriber is the subset of internal/client/apiclient.Client the cache
// needs to refresh itself.
type Subscriber interface {
	AttackDataCurrent(ctx context.Context) (wire.AttackData, error)
	AttackDataSubscribe(ctx context.Context, timeout time.Duration) (wire.AttackData, error)
}

// Cache is the local object store's subset used to persist the last
// known-good payload across process restarts.
type Cache interface {
	Get(ctx context.Context, key string, v interface{}) (bool, error)
	Put(ctx context.Context, key string, v interface{}) error
}

// DataSource implements scheduler.AttackDataSource, keeping an in-memory
// copy of the latest attack data refreshed by a background long-poll loop.
type DataSource struct {
	client Subscriber
	cache  Cache

	mu   sync.RWMutex
	data wire.AttackData
}

// New builds a DataSource, seeding it from the local cache if present.
func New(client Subscriber, cache Cache) *DataSource {
	d := &DataSource{client: client, cache: cache}
	var seed wire.AttackData
	if found, err := cache.Get(context.Background(), cacheKey, &seed); err == nil && found {
		d.data = seed
	}
	return d
}

// Current implements scheduler.AttackDataSource.
func (d *DataSource) Current() wire.AttackData {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data
}

// Run long-polls the server for attack-data updates until ctx is
// canceled, updating the in-memory copy and its on-disk cache as new
// data arrives. A failed poll is logged and retried after backoff rather
// than propagated, so a flaky connection never stops exploits from
// running against whatever data was last cached.
func (d *DataSource) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := d.client.AttackDataSubscribe(ctx, 60*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("datasource: subscribe failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		d.set(data)
	}
}

// Bootstrap fetches the current attack data once synchronously, for use
// at startup before Run's background loop has had a chance to populate
// the cache.
func (d *DataSource) Bootstrap(ctx context.Context) error {
	data, err := d.client.AttackDataCurrent(ctx)
	if err != nil {
		return err
	}
	d.set(data)
	return nil
}

func (d *DataSource) set(data wire.AttackData) {
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()

	if err := d.cache.Put(context.Background(), cacheKey, data); err != nil {
		log.Warnf("datasource: cache put failed: %v", err)
	}
}
