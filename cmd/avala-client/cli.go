// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var flagConfigFile string

func cliInit() {
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the client's `config.json`")
	flag.Parse()
}
