package attackdata

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/avalactf/avala/pkg/eventbus"
	"github.com/avalactf/avala/pkg/wire"
	"golang.org/x/time/rate"
)

type fakeState struct {
	mu    sync.Mutex
	store map[string]json.RawMessage
}

func newFakeState() *fakeState { return &fakeState{store: map[string]json.RawMessage{}} }

func (s *fakeState) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (s *fakeState) Put(ctx context.Context, key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.store[key] = raw
	return nil
}

type fakeFetcher struct {
	calls int
	data  []wire.AttackData
	errs  []error
}

func (f *fakeFetcher) Fetch(ctx context.Context) (wire.AttackData, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var data wire.AttackData
	if i < len(f.data) {
		data = f.data[i]
	}
	return data, err
}

func newTestRefresher(fetcher Fetcher, state StateStore, maxAttempts int) *Refresher {
	return &Refresher{
		Fetcher:     fetcher,
		State:       state,
		Ready:       eventbus.NewSignal(),
		MaxAttempts: maxAttempts,
		Limiter:     rate.NewLimiter(rate.Inf, 1),
	}
}

func TestHashNormalizedIgnoresKeyOrder(t *testing.T) {
	a := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{
			"10.0.0.1": {Ticks: map[int][]string{1: {"a", "b"}}},
		}},
	}}
	b := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{
			"10.0.0.1": {Ticks: map[int][]string{1: {"a", "b"}}},
		}},
	}}

	ha, err := hashNormalized(a)
	if err != nil {
		t.Fatalf("hashNormalized: %v", err)
	}
	hb, err := hashNormalized(b)
	if err != nil {
		t.Fatalf("hashNormalized: %v", err)
	}
	if ha != hb {
		t.Errorf("expected identical hashes for equal data, got %s != %s", ha, hb)
	}
}

func TestHashNormalizedDetectsChange(t *testing.T) {
	a := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"a"}}}}},
	}}
	b := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"b"}}}}},
	}}

	ha, _ := hashNormalized(a)
	hb, _ := hashNormalized(b)
	if ha == hb {
		t.Error("expected different hashes for different data")
	}
}

func TestFetchWithRetryRetriesOnUnchangedHash(t *testing.T) {
	unchanged := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"a"}}}}},
	}}
	updated := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"b"}}}}},
	}}

	state := newFakeState()
	storedHash, _ := hashNormalized(unchanged)
	if err := state.Put(t.Context(), hashStateKey, storedHash); err != nil {
		t.Fatalf("seed stored hash: %v", err)
	}
	fetcher := &fakeFetcher{data: []wire.AttackData{unchanged, unchanged, updated}}
	r := newTestRefresher(fetcher, state, 5)

	data, changed, err := r.fetchWithRetry(t.Context())
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if !changed {
		t.Fatal("expected the third attempt's new data to register as changed")
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetch attempts before a change was found, got %d", fetcher.calls)
	}
	got, _ := hashNormalized(data)
	want, _ := hashNormalized(updated)
	if got != want {
		t.Fatal("expected fetchWithRetry to return the changed payload")
	}
}

func TestFetchWithRetryGivesUpAndKeepsOldPayloadWhenNeverChanged(t *testing.T) {
	same := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"a"}}}}},
	}}

	state := newFakeState()
	storedHash, _ := hashNormalized(same)
	if err := state.Put(t.Context(), hashStateKey, storedHash); err != nil {
		t.Fatalf("seed stored hash: %v", err)
	}
	fetcher := &fakeFetcher{data: []wire.AttackData{same, same, same}}
	r := newTestRefresher(fetcher, state, 3)

	_, changed, err := r.fetchWithRetry(t.Context())
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false once all attempts see the same hash")
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected all 3 attempts to be used, got %d", fetcher.calls)
	}
}

func TestFetchWithRetryPersistsHashAcrossInstances(t *testing.T) {
	data := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"a"}}}}},
	}}

	state := newFakeState()
	first := newTestRefresher(&fakeFetcher{data: []wire.AttackData{data}}, state, 1)
	if _, changed, err := first.fetchWithRetry(t.Context()); err != nil || !changed {
		t.Fatalf("first fetch: changed=%v err=%v", changed, err)
	}

	// A brand new Refresher instance (simulating a process restart) sharing
	// the same state store must still recognize the hash as unchanged.
	second := newTestRefresher(&fakeFetcher{data: []wire.AttackData{data}}, state, 1)
	if _, changed, err := second.fetchWithRetry(t.Context()); err != nil || changed {
		t.Fatalf("second fetch: expected changed=false via persisted hash, got changed=%v err=%v", changed, err)
	}
}
