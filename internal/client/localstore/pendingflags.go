package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/avalactf/avala/internal/client/outbox"
	"github.com/jmoiron/sqlx"
)

var (
	pendingOnce     sync.Once
	pendingInstance *PendingFlagStore
)

// PendingFlag is one batch of flag ids discovered by an exploit run, not
// yet acknowledged as enqueued by the server.
type PendingFlag struct {
	ID      int64  `db:"id"`
	Service string `db:"service"`
	Exploit string `db:"exploit"`
	Target  string `db:"target"`
	Tick    int    `db:"tick"`
	FlagIDs string `db:"flag_ids"` // JSON-encoded []string
}

// Values decodes FlagIDs.
func (p PendingFlag) Values() ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(p.FlagIDs), &v); err != nil {
		return nil, fmt.Errorf("pending flag %d: decode flag_ids: %w", p.ID, err)
	}
	return v, nil
}

// PendingFlagStore is the outbox's durable backing store: flag ids survive
// here until the server has accepted them, surviving client restarts and
// transient API outages.
type PendingFlagStore struct {
	DB *sqlx.DB
}

// GetPendingFlagStore returns the singleton PendingFlagStore.
func GetPendingFlagStore() *PendingFlagStore {
	pendingOnce.Do(func() {
		pendingInstance = &PendingFlagStore{DB: GetConnection().DB}
	})
	return pendingInstance
}

// Add records a pending batch and returns its id.
func (s *PendingFlagStore) Add(ctx context.Context, service, exploitAlias, target string, tick int, flagIDs []string) (int64, error) {
	raw, err := json.Marshal(flagIDs)
	if err != nil {
		return 0, fmt.Errorf("pending flags: encode: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO pending_flags (service, exploit, target, tick, flag_ids) VALUES (?, ?, ?, ?, ?)`,
		service, exploitAlias, target, tick, raw)
	if err != nil {
		return 0, fmt.Errorf("pending flags: insert: %w", err)
	}
	return res.LastInsertId()
}

// rows returns every pending batch, oldest first, up to limit (0 = unbounded).
func (s *PendingFlagStore) rows(ctx context.Context, limit int) ([]PendingFlag, error) {
	query := `SELECT id, service, exploit, target, tick, flag_ids FROM pending_flags ORDER BY id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var out []PendingFlag
	if err := s.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("pending flags: select: %w", err)
	}
	return out, nil
}

// All satisfies internal/client/outbox.Store, decoding each row's flag_ids.
func (s *PendingFlagStore) All(ctx context.Context, limit int) ([]outbox.PendingFlagRow, error) {
	rows, err := s.rows(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]outbox.PendingFlagRow, 0, len(rows))
	for _, r := range rows {
		values, err := r.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, outbox.PendingFlagRow{
			ID: r.ID, Service: r.Service, Exploit: r.Exploit, Target: r.Target, Tick: r.Tick, FlagIDs: values,
		})
	}
	return out, nil
}

// Remove deletes a batch once the server has accepted it.
func (s *PendingFlagStore) Remove(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM pending_flags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("pending flags: delete %d: %w", id, err)
	}
	return nil
}
