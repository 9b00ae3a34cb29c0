// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagMigrateDB, flagGops bool
	flagConfigFile          string
)

func cliInit() {
	flag.BoolVar(&flagMigrateDB, "migrate-db", false, "Apply pending schema migrations to the configured database and exit")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the server's `config.json`")
	flag.Parse()
}
