// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"strings"
	"testing"
)

func TestValidateServerConfigOK(t *testing.T) {
	raw := `{
		"addr": ":8080",
		"game": {"game_starts_at": "2026-01-01T12:00:00Z", "tick_duration": "120s", "flag_format": "FLAG\\{.*\\}", "flag_ttl": 3},
		"database": {"host": "localhost", "dbname": "avala"},
		"queue": {"address": "nats://localhost:4222"},
		"submitter": {"strategy": "per_tick"}
	}`
	if err := Validate(ServerConfig, strings.NewReader(raw)); err != nil {
		t.Errorf("expected valid config, got error: %s", err.Error())
	}
}

func TestValidateServerConfigMissingField(t *testing.T) {
	raw := `{"addr": ":8080"}`
	if err := Validate(ServerConfig, strings.NewReader(raw)); err == nil {
		t.Error("expected validation error for missing fields, got nil")
	}
}

func TestValidateClientConfigOK(t *testing.T) {
	raw := `{"server": {"url": "http://localhost:8080"}, "exploits_dir": "./exploits"}`
	if err := Validate(ClientConfig, strings.NewReader(raw)); err != nil {
		t.Errorf("expected valid config, got error: %s", err.Error())
	}
}
