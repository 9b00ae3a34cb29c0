// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avalactf/avala/internal/client/apiclient"
	"github.com/avalactf/avala/internal/client/datasource"
	"github.com/avalactf/avala/internal/client/dedup"
	"github.com/avalactf/avala/internal/client/executor"
	"github.com/avalactf/avala/internal/client/localstore"
	"github.com/avalactf/avala/internal/client/outbox"
	"github.com/avalactf/avala/internal/client/scheduler"
	"github.com/avalactf/avala/internal/config"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/runtimeEnv"
	"github.com/avalactf/avala/pkg/tick"
	"github.com/avalactf/avala/pkg/wire"
)

func main() {
	cliInit()

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	keys, err := config.InitClient(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(keys.DataDir, 0o755); err != nil {
		log.Fatalf("avala-client: create data dir %s: %s", keys.DataDir, err.Error())
	}
	if _, err := localstore.Connect(filepath.Join(keys.DataDir, "avala.db")); err != nil {
		log.Fatal(err)
	}

	apiClient := apiclient.New(keys.Server.URL, keys.Server.Username, keys.Server.Password)

	ctx := context.Background()
	game, schedule := connectOrDie(ctx, apiClient)

	clock := tick.Clock{
		GameStartsAt:      schedule.FirstTickStart,
		TickDuration:      time.Duration(schedule.TickDuration * float64(time.Second)),
		NetworksOpenAfter: time.Duration(schedule.NetworkOpenTick) * time.Duration(schedule.TickDuration*float64(time.Second)),
		GameEndsAfter:     time.Duration(schedule.TotalTicks) * time.Duration(schedule.TickDuration*float64(time.Second)),
	}

	exec, err := executor.New(game.FlagFormat)
	if err != nil {
		log.Fatalf("avala-client: invalid flag_format %q: %s", game.FlagFormat, err.Error())
	}

	ledger := dedup.New(localstore.GetHashStore())
	ob := outbox.New(localstore.GetPendingFlagStore(), apiClient)
	data := datasource.New(apiClient, localstore.GetObjectStore())

	if err := data.Bootstrap(ctx); err != nil {
		log.Warnf("avala-client: initial attack-data fetch failed, starting with an empty cache: %v", err)
	}

	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	go data.Run(subCtx)

	sch, err := scheduler.New(clock, game, exec, ledger, ob, data)
	if err != nil {
		log.Fatal(err)
	}

	if err := sch.LoadDir(keys.ExploitsDir); err != nil {
		log.Fatal(err)
	}
	if err := sch.RegisterExploits(); err != nil {
		log.Fatal(err)
	}
	if err := sch.RegisterHeartbeat(15*time.Second, 64); err != nil {
		log.Fatal(err)
	}

	sch.Start()
	log.Infof("avala-client: scheduling exploits from %s against %s", keys.ExploitsDir, keys.Server.URL)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancelSub()
	_ = sch.Shutdown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if _, err := ob.Drain(drainCtx, 256); err != nil {
		log.Warnf("avala-client: final outbox drain failed, pending flags remain on disk: %v", err)
	}

	log.Print("avala-client: graceful shutdown complete")
}

// connectOrDie blocks, retrying with backoff, until the server answers
// both /connect/game and /connect/schedule: the client cannot compute its
// tick clock or pick exploit targets before that.
func connectOrDie(ctx context.Context, c *apiclient.Client) (wire.GameInfo, wire.Schedule) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		game, err := c.Game(ctx)
		if err == nil {
			schedule, err2 := c.Schedule(ctx)
			if err2 == nil {
				return game, schedule
			}
			err = err2
		}
		log.Warnf("avala-client: waiting for server, retrying in %s: %v", backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
