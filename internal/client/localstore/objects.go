package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	objectsOnce     sync.Once
	objectsInstance *ObjectStore
)

// ObjectStore is the client's small settings/blob cache: the last
// published attack-data payload, exported exploit settings, and any other
// value worth surviving a restart.
type ObjectStore struct {
	DB *sqlx.DB
}

// GetObjectStore returns the singleton ObjectStore.
func GetObjectStore() *ObjectStore {
	objectsOnce.Do(func() {
		objectsInstance = &ObjectStore{DB: GetConnection().DB}
	})
	return objectsInstance
}

// Get decodes the JSON value stored under key into v, returning false if absent.
func (o *ObjectStore) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	var raw []byte
	err := o.DB.GetContext(ctx, &raw, `SELECT value FROM objects WHERE key = ?`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("object store: get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("object store: decode %q: %w", key, err)
	}
	return true, nil
}

// Put upserts v, JSON-encoded, under key.
func (o *ObjectStore) Put(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("object store: encode %q: %w", key, err)
	}
	_, err = o.DB.ExecContext(ctx, `
		INSERT INTO objects (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw)
	if err != nil {
		return fmt.Errorf("object store: put %q: %w", key, err)
	}
	return nil
}
