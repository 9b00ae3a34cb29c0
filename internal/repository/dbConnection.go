// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository implements the flag store and state store: the
// PostgreSQL-backed persistence layer behind the intake, submitter,
// persister and attack-data refresher components.
package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/avalactf/avala/pkg/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the shared database handle.
type DBConnection struct {
	DB *sqlx.DB
}

// Config names a PostgreSQL database to connect to.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// urlDSN formats the connection as a postgres:// URL, the shape
// golang-migrate's source URL expects.
func (c Config) urlDSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, port, c.DBName, sslmode)
}

func (c Config) dsn() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslmode)
}

// Connect opens the singleton connection to the flag/state database,
// checks the applied migration version, and registers it for GetConnection.
func Connect(cfg Config) {
	dbConnOnce.Do(func() {
		dbHandle, err := sqlx.Open("pgx", cfg.dsn())
		if err != nil {
			log.Fatalf("repository: sqlx.Open failed: %v", err)
		}

		dbHandle.SetConnMaxLifetime(time.Minute * 3)
		dbHandle.SetMaxOpenConns(20)
		dbHandle.SetMaxIdleConns(20)

		if err := dbHandle.Ping(); err != nil {
			log.Fatalf("repository: database unreachable: %v", err)
		}

		dbConnInstance = &DBConnection{DB: dbHandle}
		checkDBVersion(dbHandle.DB)
	})
}

// GetConnection returns the singleton database connection.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("repository: database connection not initialized")
	}
	return dbConnInstance
}
