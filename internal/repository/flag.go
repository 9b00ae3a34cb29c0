// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/avalactf/avala/pkg/wire"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var (
	flagRepoOnce     sync.Once
	flagRepoInstance *FlagRepository
)

// Flag is the persisted row for one submitted flag value.
type Flag struct {
	ID         int64     `db:"id"`
	Value      string    `db:"value"`
	Player     string    `db:"player"`
	Exploit    string    `db:"exploit"`
	Target     string    `db:"target"`
	TickQueued int       `db:"tick_queued"`
	Status     string    `db:"status"`
	Message    sql.NullString `db:"message"`
	Points     sql.NullFloat64 `db:"points"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// FlagRepository is the flag store: the primary-key-on-value table that
// gives Avala its server-side dedup guarantee.
type FlagRepository struct {
	DB        *sqlx.DB
	stmtCache *sq.StmtCache
}

// GetFlagRepository returns the singleton FlagRepository.
func GetFlagRepository() *FlagRepository {
	flagRepoOnce.Do(func() {
		db := GetConnection()
		flagRepoInstance = &FlagRepository{
			DB:        db.DB,
			stmtCache: sq.NewStmtCache(db.DB),
		}
	})
	return flagRepoInstance
}

var flagColumns = []string{
	"id", "value", "player", "exploit", "target", "tick_queued", "status", "message", "points", "created_at", "updated_at",
}

func scanFlag(row interface{ Scan(...interface{}) error }) (*Flag, error) {
	f := &Flag{}
	if err := row.Scan(&f.ID, &f.Value, &f.Player, &f.Exploit, &f.Target, &f.TickQueued,
		&f.Status, &f.Message, &f.Points, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

// Enqueue inserts the values not already known, inside a single
// transaction, and returns the ones newly accepted versus discarded.
// Values already present in the store are discarded, and so are repeats
// of the same value within this batch: the primary key on value is the
// dedup mechanism, enforced transactionally to close the race the naive
// check-then-insert would otherwise leave open, but a batch containing
// the same value twice would otherwise build an INSERT with two rows for
// the same key and fail the unique constraint outright.
func (r *FlagRepository) Enqueue(ctx context.Context, exploit, target, player string, tick int, values []string) (accepted, discarded []string, err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("flag store: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing := make(map[string]bool, len(values))
	if len(values) > 0 {
		query, args, qerr := sq.Select("value").From("flags").Where(sq.Eq{"value": values}).ToSql()
		if qerr != nil {
			return nil, nil, fmt.Errorf("flag store: build query: %w", qerr)
		}
		rows, qerr := tx.QueryxContext(ctx, query, args...)
		if qerr != nil {
			return nil, nil, fmt.Errorf("flag store: query existing: %w", qerr)
		}
		for rows.Next() {
			var v string
			if serr := rows.Scan(&v); serr != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("flag store: scan existing: %w", serr)
			}
			existing[v] = true
		}
		rows.Close()
	}

	insert := sq.Insert("flags").Columns("value", "player", "exploit", "target", "tick_queued", "status")
	seen := make(map[string]bool, len(values))
	any := false
	for _, v := range values {
		if existing[v] || seen[v] {
			discarded = append(discarded, v)
			continue
		}
		seen[v] = true
		insert = insert.Values(v, player, exploit, target, tick, wire.StatusQueued)
		accepted = append(accepted, v)
		any = true
	}

	if any {
		query, args, qerr := insert.ToSql()
		if qerr != nil {
			return nil, nil, fmt.Errorf("flag store: build insert: %w", qerr)
		}
		if _, qerr := tx.ExecContext(ctx, query, args...); qerr != nil {
			return nil, nil, fmt.Errorf("flag store: insert: %w", qerr)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("flag store: commit: %w", err)
	}

	return accepted, discarded, nil
}

// FindByStatus returns up to limit flags in the given status, oldest first.
func (r *FlagRepository) FindByStatus(ctx context.Context, status string, limit int) ([]*Flag, error) {
	query, args, err := sq.Select(flagColumns...).From("flags").
		Where(sq.Eq{"status": status}).OrderBy("id ASC").Limit(uint64(limit)).
		RunWith(r.stmtCache).ToSql()
	if err != nil {
		return nil, fmt.Errorf("flag store: build query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flag store: query: %w", err)
	}
	defer rows.Close()

	var out []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// StaleQueued returns flags stuck in "queued" past the given age, such as
// flags whose broker publish failed at intake. No other package calls it;
// the submitter does not replay these flags.
func (r *FlagRepository) StaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]*Flag, error) {
	query, args, err := sq.Select(flagColumns...).From("flags").
		Where(sq.Eq{"status": wire.StatusQueued}).
		Where(sq.Lt{"created_at": time.Now().Add(-olderThan)}).
		OrderBy("id ASC").Limit(uint64(limit)).
		RunWith(r.stmtCache).ToSql()
	if err != nil {
		return nil, fmt.Errorf("flag store: build query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flag store: query: %w", err)
	}
	defer rows.Close()

	var out []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// UpdateResult records the checker's verdict for a flag.
func (r *FlagRepository) UpdateResult(ctx context.Context, value string, resp wire.FlagSubmissionResponse) error {
	_, err := sq.Update("flags").
		Set("status", resp.Status).
		Set("message", resp.Message).
		Set("points", resp.Points).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"value": value}).
		RunWith(r.stmtCache).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("flag store: update result: %w", err)
	}
	return nil
}

// Stats reports flag counts grouped by status, for /flags/db-stats style
// observability.
func (r *FlagRepository) Stats(ctx context.Context) (map[string]int, error) {
	query, args, err := sq.Select("status", "count(*)").From("flags").GroupBy("status").
		RunWith(r.stmtCache).ToSql()
	if err != nil {
		return nil, fmt.Errorf("flag store: build query: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flag store: query: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, nil
}
