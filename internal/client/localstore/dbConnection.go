// Package localstore is the client's on-disk state: pending flags not yet
// acknowledged by the server, the dedup ledger, and a small settings/blob
// cache mirroring the server's published attack-data and exploit state.
// Adapted from the server's repository package for a single-writer SQLite
// file rather than Postgres.
package localstore

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	sqlhooks "github.com/qustavo/sqlhooks/v2"
)

var (
	once     sync.Once
	instance *DBConnection
)

// DBConnection wraps the client's single sqlx handle to the local SQLite file.
type DBConnection struct {
	DB *sqlx.DB
}

// Connect opens (creating if needed) the SQLite file at path. SQLite does
// not support concurrent writers, so the pool is capped at one connection.
func Connect(path string) (*DBConnection, error) {
	var err error
	once.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
		var dbHandle *sqlx.DB
		dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
		if err != nil {
			err = fmt.Errorf("localstore: open %s: %w", path, err)
			return
		}
		dbHandle.SetMaxOpenConns(1)
		if err = dbHandle.Ping(); err != nil {
			err = fmt.Errorf("localstore: ping %s: %w", path, err)
			return
		}
		if err = migrate(dbHandle.DB); err != nil {
			return
		}
		instance = &DBConnection{DB: dbHandle}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// GetConnection returns the process-wide connection opened by Connect.
func GetConnection() *DBConnection {
	if instance == nil {
		panic("localstore: Connect was not called")
	}
	return instance
}
