package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avalactf/avala/pkg/wire"
)

type fakeSubscriber struct {
	mu          sync.Mutex
	current     wire.AttackData
	currentErr  error
	subscribeCh chan wire.AttackData
}

func (f *fakeSubscriber) AttackDataCurrent(ctx context.Context) (wire.AttackData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeSubscriber) AttackDataSubscribe(ctx context.Context, timeout time.Duration) (wire.AttackData, error) {
	select {
	case data := <-f.subscribeCh:
		return data, nil
	case <-ctx.Done():
		return wire.AttackData{}, ctx.Err()
	}
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]wire.AttackData
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string]wire.AttackData{}} }

func (c *fakeCache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.store[key]
	if !ok {
		return false, nil
	}
	ptr, ok := v.(*wire.AttackData)
	if !ok {
		return false, errors.New("unexpected type")
	}
	*ptr = data
	return true, nil
}

func (c *fakeCache) Put(ctx context.Context, key string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := v.(wire.AttackData)
	if !ok {
		return errors.New("unexpected type")
	}
	c.store[key] = data
	return nil
}

func TestNewSeedsFromCache(t *testing.T) {
	cache := newFakeCache()
	seed := wire.AttackData{Services: map[string]wire.ServiceData{"web": {}}}
	cache.store[cacheKey] = seed

	d := New(&fakeSubscriber{subscribeCh: make(chan wire.AttackData)}, cache)
	if _, ok := d.Current().Services["web"]; !ok {
		t.Fatal("expected DataSource to seed Current() from the cache")
	}
}

func TestBootstrapPopulatesCurrentAndCache(t *testing.T) {
	cache := newFakeCache()
	want := wire.AttackData{Services: map[string]wire.ServiceData{"pwn": {}}}
	sub := &fakeSubscriber{current: want, subscribeCh: make(chan wire.AttackData)}

	d := New(sub, cache)
	if err := d.Bootstrap(t.Context()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, ok := d.Current().Services["pwn"]; !ok {
		t.Fatal("expected Bootstrap to populate Current()")
	}
	if _, ok := cache.store[cacheKey]; !ok {
		t.Fatal("expected Bootstrap to persist to the cache")
	}
}

func TestRunUpdatesOnSubscribePush(t *testing.T) {
	cache := newFakeCache()
	sub := &fakeSubscriber{subscribeCh: make(chan wire.AttackData, 1)}
	d := New(sub, cache)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	sub.subscribeCh <- wire.AttackData{Services: map[string]wire.ServiceData{"rev": {}}}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := d.Current().Services["rev"]; ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Run to pick up the pushed attack data")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
