// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestInitServerOK(t *testing.T) {
	path := writeTempConfig(t, `{
		"addr": ":9090",
		"game": {"game_starts_at": "2026-01-01T12:00:00Z", "tick_duration": "120s", "flag_format": "FLAG\\{.*\\}", "flag_ttl": 3},
		"database": {"host": "localhost", "dbname": "avala"},
		"queue": {"address": "nats://localhost:4222"},
		"submitter": {"strategy": "per_tick"}
	}`)

	keys, err := InitServer(path)
	if err != nil {
		t.Fatalf("InitServer: %v", err)
	}
	if keys.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", keys.Addr)
	}
	if keys.Game.TickDuration.AsDuration() != 120*time.Second {
		t.Errorf("TickDuration = %v, want 120s", keys.Game.TickDuration.AsDuration())
	}
}

func TestInitServerMissingFlagFormat(t *testing.T) {
	path := writeTempConfig(t, `{"addr": ":9090"}`)
	if _, err := InitServer(path); err == nil {
		t.Error("expected error for invalid config, got nil")
	}
}

func TestInitClientOK(t *testing.T) {
	path := writeTempConfig(t, `{"server": {"url": "http://localhost:8080"}, "exploits_dir": "./exploits"}`)
	keys, err := InitClient(path)
	if err != nil {
		t.Fatalf("InitClient: %v", err)
	}
	if keys.Server.URL != "http://localhost:8080" {
		t.Errorf("Server.URL = %q", keys.Server.URL)
	}
	if keys.Workers != 128 {
		t.Errorf("Workers default = %d, want 128", keys.Workers)
	}
}
