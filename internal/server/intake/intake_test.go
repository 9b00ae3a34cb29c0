package intake

import (
	"context"
	"testing"
)

type fakeStore struct {
	accepted, discarded []string
}

func (f *fakeStore) Enqueue(ctx context.Context, exploit, target, player string, tick int, values []string) ([]string, []string, error) {
	return f.accepted, f.discarded, nil
}

func TestIntakeEnqueueReturnsStoresPartition(t *testing.T) {
	store := &fakeStore{discarded: []string{"FLAG{dup}"}}
	in := &Intake{Store: store, Tick: func() int { return 3 }}

	result, err := in.Enqueue(t.Context(), "team1", "web-rce", "10.0.0.1", []string{"FLAG{dup}"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(result.Enqueued) != 0 {
		t.Errorf("expected no enqueued flags, got %v", result.Enqueued)
	}
	if len(result.Discarded) != 1 || result.Discarded[0] != "FLAG{dup}" {
		t.Errorf("expected discarded=[FLAG{dup}], got %v", result.Discarded)
	}
}
