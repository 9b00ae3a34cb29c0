// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"bytes"
	"encoding/json"

	"github.com/avalactf/avala/pkg/log"
)

// Config holds the configuration for connecting to the queue broker.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds_file_path"`
}

// Keys holds the global queue configuration loaded via Init.
var Keys Config

// Init initializes the global Keys configuration from JSON.
func Init(rawConfig json.RawMessage) error {
	if rawConfig == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Errorf("queue: error initializing config: %s", err.Error())
		return err
	}
	return nil
}
