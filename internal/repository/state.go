// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	stateRepoOnce     sync.Once
	stateRepoInstance *StateRepository
)

// StateRepository is the state store: a small key/value table replacing
// the dynamic-attribute StateManager with explicit Get/Put operations.
type StateRepository struct {
	DB *sqlx.DB
}

// GetStateRepository returns the singleton StateRepository.
func GetStateRepository() *StateRepository {
	stateRepoOnce.Do(func() {
		db := GetConnection()
		stateRepoInstance = &StateRepository{DB: db.DB}
	})
	return stateRepoInstance
}

// Get decodes the value stored under key into v. It returns false, nil
// if the key does not exist.
func (s *StateRepository) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	var raw []byte
	err := s.DB.GetContext(ctx, &raw, `SELECT value FROM state WHERE key = $1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("state store: get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("state store: decode %q: %w", key, err)
	}
	return true, nil
}

// Put upserts v under key.
func (s *StateRepository) Put(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state store: encode %q: %w", key, err)
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("state store: put %q: %w", key, err)
	}
	return nil
}
