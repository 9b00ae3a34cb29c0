package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

var (
	hashesOnce     sync.Once
	hashesInstance *HashStore
)

// HashStore backs the dedup ledger with the hashes table. Its methods
// satisfy internal/client/dedup.Store.
type HashStore struct {
	db *DBConnection
}

// GetHashStore returns the singleton HashStore.
func GetHashStore() *HashStore {
	hashesOnce.Do(func() {
		hashesInstance = &HashStore{db: GetConnection()}
	})
	return hashesInstance
}

func (h *HashStore) Seen(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := h.db.DB.GetContext(ctx, &exists, `SELECT 1 FROM hashes WHERE hash = ?`, hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("hash store: seen %q: %w", hash, err)
	}
	return true, nil
}

func (h *HashStore) Record(ctx context.Context, hash, exploitAlias, target string) error {
	_, err := h.db.DB.ExecContext(ctx, `
		INSERT INTO hashes (hash, exploit, target) VALUES (?, ?, ?)
		ON CONFLICT (hash) DO NOTHING`, hash, exploitAlias, target)
	if err != nil {
		return fmt.Errorf("hash store: record %q: %w", hash, err)
	}
	return nil
}

func (h *HashStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := h.db.DB.ExecContext(ctx, `DELETE FROM hashes WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("hash store: prune: %w", err)
	}
	return res.RowsAffected()
}
