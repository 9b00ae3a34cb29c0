// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the JSON configuration files for
// both avala-server and avala-client, following the same
// load-then-validate-then-decode pattern the rest of the ecosystem uses.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/schema"
)

// Duration unmarshals from a Go duration string ("120s", "2m"), the shape
// used throughout both config files for every time span.
type Duration time.Duration

// UnmarshalJSON accepts a duration string such as "120s".
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// AsDuration returns d as a time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// GameConfig describes the competition's timing and flag shape.
type GameConfig struct {
	GameStartsAt      time.Time `json:"game_starts_at"`
	TickDuration      Duration  `json:"tick_duration"`
	NetworksOpenAfter Duration  `json:"networks_open_after"`
	GameEndsAfter     Duration  `json:"game_ends_after"`
	FlagFormat        string    `json:"flag_format"`
	FlagTTL           int       `json:"flag_ttl"`
	TeamIP            []string  `json:"team_ip"`
	NopTeamIP         []string  `json:"nop_team_ip"`

	// AttackDataURL, if set, is fetched by the built-in reference
	// attackdata.HTTPFetcher. Competitions with a bespoke attack-data
	// format wire their own Fetcher in main() instead and leave this empty.
	AttackDataURL string `json:"attack_data_url"`
}

// DatabaseConfig describes the PostgreSQL connection used for the flag
// and state stores.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// SubmitterConfig selects and tunes one of the four pacing strategies.
type SubmitterConfig struct {
	Strategy   string   `json:"strategy"`
	Interval   Duration `json:"interval"`
	BatchSize  int      `json:"batch_size"`
	Workers    int      `json:"workers"`
	CheckerURL string   `json:"checker_url"`
}

// ServerKeys is the decoded avala-server configuration.
type ServerKeys struct {
	Addr     string          `json:"addr"`
	Password string          `json:"password"`
	Game     GameConfig      `json:"game"`
	Database DatabaseConfig  `json:"database"`
	Queue    json.RawMessage `json:"queue"`
	Submitter SubmitterConfig `json:"submitter"`
	LogLevel string          `json:"loglevel"`
}

// ServerDefaults returns a ServerKeys populated with Avala's defaults,
// the same role schema.ProgramConfig's package-level struct literal plays
// for cc-backend.
func ServerDefaults() ServerKeys {
	return ServerKeys{
		Addr:     ":8080",
		LogLevel: "info",
		Submitter: SubmitterConfig{
			Strategy: "per_tick",
			Workers:  16,
		},
	}
}

// InitServer reads, validates and decodes the server config file at path.
func InitServer(path string) (ServerKeys, error) {
	keys := ServerDefaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return keys, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := schema.Validate(schema.ServerConfig, bytes.NewReader(raw)); err != nil {
		return keys, fmt.Errorf("config: validating %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&keys); err != nil {
		return keys, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if keys.Game.FlagFormat == "" {
		return keys, fmt.Errorf("config: game.flag_format is required")
	}

	log.SetLogLevel(keys.LogLevel)
	return keys, nil
}

// ClientServerConfig describes how the client reaches avala-server.
type ClientServerConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ClientKeys is the decoded avala-client configuration.
type ClientKeys struct {
	Server      ClientServerConfig `json:"server"`
	ExploitsDir string             `json:"exploits_dir"`
	DataDir     string             `json:"data_dir"`
	Workers     int                `json:"workers"`
	LogLevel    string             `json:"loglevel"`
}

// ClientDefaults returns a ClientKeys populated with Avala's defaults.
func ClientDefaults() ClientKeys {
	return ClientKeys{
		DataDir:  "./.avala",
		Workers:  128,
		LogLevel: "info",
	}
}

// InitClient reads, validates and decodes the client config file at path.
func InitClient(path string) (ClientKeys, error) {
	keys := ClientDefaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return keys, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := schema.Validate(schema.ClientConfig, bytes.NewReader(raw)); err != nil {
		return keys, fmt.Errorf("config: validating %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&keys); err != nil {
		return keys, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if keys.Server.URL == "" {
		return keys, fmt.Errorf("config: server.url is required")
	}

	log.SetLogLevel(keys.LogLevel)
	return keys, nil
}
