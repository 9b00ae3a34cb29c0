package exploit

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	e, err := New(Config{Service: "web", Alias: "leak"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Config.Workers != 128 {
		t.Errorf("Workers = %d, want 128", e.Config.Workers)
	}
	if e.Config.Targets != Auto {
		t.Errorf("Targets = %q, want auto", e.Config.Targets)
	}
}

func TestNewRejectsConflictingBatching(t *testing.T) {
	_, err := New(Config{Service: "web", Alias: "leak", Batching: Batching{Size: 2, Count: 3}})
	if err == nil {
		t.Error("expected error for conflicting batching config")
	}
}

func TestNewRejectsLastNWithoutCount(t *testing.T) {
	_, err := New(Config{Service: "web", Alias: "leak", TickScope: LastNTicks})
	if err == nil {
		t.Error("expected error for last_n scope without last_n count")
	}
}
