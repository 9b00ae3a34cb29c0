// Package dedup is the client's idempotence ledger: before an exploit is
// run against a target, the fingerprint of its input (alias, target and
// tick-scoped flag ids) is checked against a local hash table and, after a
// successful run, recorded there, so the same attack is not repeated
// across restarts or later scheduler ticks.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Store is the subset of localstore needed to record and check fingerprints.
type Store interface {
	Seen(ctx context.Context, hash string) (bool, error)
	Record(ctx context.Context, hash, exploitAlias, target string) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Ledger deduplicates exploit output by content hash.
type Ledger struct {
	store Store
}

// New builds a Ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Fingerprint reproduces the original's hash_flag_ids: md5 of the
// exploit alias, the target, and the sorted, stringified flag ids —
// sorted so that two runs returning the same ids in different order
// still collapse to one fingerprint.
func Fingerprint(exploitAlias, target string, flagIDs []string) string {
	sorted := append([]string(nil), flagIDs...)
	sort.Strings(sorted)
	h := md5.New()
	fmt.Fprintf(h, "%s\x00%s\x00%v", exploitAlias, target, sorted)
	return hex.EncodeToString(h.Sum(nil))
}

// Seen reports whether fingerprint was already recorded: callers check
// this against the exploit's tick-scoped input flag ids *before* running
// it, so an already-attempted (exploit, target, flag-id) combination is
// skipped rather than re-run.
func (l *Ledger) Seen(ctx context.Context, fingerprint string) (bool, error) {
	seen, err := l.store.Seen(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("dedup: check %s: %w", fingerprint, err)
	}
	return seen, nil
}

// Record marks fingerprint as seen. Callers record only after a
// successful run, so a failed attempt remains eligible for retry.
func (l *Ledger) Record(ctx context.Context, fingerprint, exploitAlias, target string) error {
	if err := l.store.Record(ctx, fingerprint, exploitAlias, target); err != nil {
		return fmt.Errorf("dedup: record %s: %w", fingerprint, err)
	}
	return nil
}

// Prune discards ledger entries older than olderThan, bounding the table's
// growth over a long-running competition.
func (l *Ledger) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := l.store.Prune(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("dedup: prune: %w", err)
	}
	return n, nil
}
