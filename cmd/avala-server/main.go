// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/avalactf/avala/internal/auth"
	"github.com/avalactf/avala/internal/config"
	"github.com/avalactf/avala/internal/repository"
	"github.com/avalactf/avala/internal/server/attackdata"
	"github.com/avalactf/avala/internal/server/checker"
	"github.com/avalactf/avala/internal/server/httpapi"
	"github.com/avalactf/avala/internal/server/intake"
	"github.com/avalactf/avala/internal/server/persister"
	"github.com/avalactf/avala/internal/server/scheduler"
	"github.com/avalactf/avala/internal/server/submitter"
	"github.com/avalactf/avala/pkg/eventbus"
	"github.com/avalactf/avala/pkg/log"
	"github.com/avalactf/avala/pkg/queue"
	"github.com/avalactf/avala/pkg/runtimeEnv"
	"github.com/avalactf/avala/pkg/tick"
	"github.com/avalactf/avala/pkg/wire"
	"github.com/google/gops/agent"
	"github.com/gorilla/mux"
)

func main() {
	cliInit()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	keys, err := config.InitServer(flagConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	dbCfg := repository.Config{
		Host: keys.Database.Host, Port: keys.Database.Port, User: keys.Database.User,
		Password: keys.Database.Password, DBName: keys.Database.DBName, SSLMode: keys.Database.SSLMode,
	}

	if flagMigrateDB {
		repository.MigrateDB(dbCfg)
		return
	}

	repository.Connect(dbCfg)
	flagRepo := repository.GetFlagRepository()
	stateRepo := repository.GetStateRepository()

	if err := queue.Init(keys.Queue); err != nil {
		log.Fatal(err)
	}
	queueClient, err := queue.Connect(nil)
	if err != nil {
		log.Fatal(err)
	}
	defer queueClient.Close()

	submissionQueue, err := queueClient.Declare("submission_queue")
	if err != nil {
		log.Fatal(err)
	}
	persistQueue, err := queueClient.Declare("persist_queue")
	if err != nil {
		log.Fatal(err)
	}

	broadcaster := eventbus.NewBroadcaster(queueClient.Conn())

	clock := tick.Clock{
		GameStartsAt:      keys.Game.GameStartsAt,
		TickDuration:      keys.Game.TickDuration.AsDuration(),
		NetworksOpenAfter: keys.Game.NetworksOpenAfter.AsDuration(),
		GameEndsAfter:     keys.Game.GameEndsAfter.AsDuration(),
	}

	in := &intake.Intake{
		Store:           flagRepo,
		SubmissionQueue: submissionQueue,
		Broadcaster:     broadcaster,
		Tick:            func() int { return clock.Number(time.Now()) },
		FlagTTL:         time.Duration(keys.Game.FlagTTL) * clock.TickDuration,
	}

	persist := persister.New(persistQueue, flagRepo)

	sub := submitter.New(submissionQueue, persistQueue, broadcaster)

	game := wire.GameInfo{
		GameStartsAt:      keys.Game.GameStartsAt,
		TickDuration:      clock.TickDuration,
		NetworksOpenAfter: clock.NetworksOpenAfter,
		GameEndsAfter:     clock.GameEndsAfter,
		FlagFormat:        keys.Game.FlagFormat,
		FlagTTL:           keys.Game.FlagTTL,
		TeamIP:            keys.Game.TeamIP,
		NopTeamIP:         keys.Game.NopTeamIP,
	}

	handler := &httpapi.Handler{
		Clock:    clock,
		GameInfo: game,
		State:    stateRepo,
		Intake:   in,
	}

	var refresher *attackdata.Refresher
	if keys.Game.AttackDataURL != "" {
		refresher = attackdata.NewRefresher(attackdata.NewHTTPFetcher(keys.Game.AttackDataURL, 10*time.Second), nil, stateRepo, broadcaster)
		handler.Ready = refresher.Ready
	} else {
		log.Warn("avala-server: game.attack_data_url is empty, attack-data refresh disabled; wire a custom Fetcher in main() for this competition")
		handler.Ready = eventbus.NewSignal()
	}

	sch, err := scheduler.New(clock)
	if err != nil {
		log.Fatal(err)
	}
	if refresher != nil {
		if err := sch.RegisterAttackDataRefresh(refresher); err != nil {
			log.Fatal(err)
		}
	}
	if err := sch.RegisterPersister(persist, 2*time.Second); err != nil {
		log.Fatal(err)
	}
	if err := sch.RegisterTickGauge(); err != nil {
		log.Fatal(err)
	}
	if err := sch.RegisterQueueDepthGauge(submissionQueue, time.Second); err != nil {
		log.Fatal(err)
	}

	var wg sync.WaitGroup
	streamsCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	switch keys.Submitter.Strategy {
	case "streams":
		workers := keys.Submitter.Workers
		if workers <= 0 {
			workers = 4
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			newChecker := func() (submitter.StreamChecker, error) {
				return checker.NewStream(keys.Submitter.CheckerURL, 10*time.Second), nil
			}
			if err := sub.RunStreams(streamsCtx, newChecker, workers); err != nil {
				log.Errorf("avala-server: streams submitter exited: %v", err)
			}
		}()
	case "batch_size":
		wg.Add(1)
		go func() {
			defer wg.Done()
			batchSize := keys.Submitter.BatchSize
			if batchSize <= 0 {
				batchSize = 32
			}
			c := checker.New(keys.Submitter.CheckerURL, 10*time.Second)
			if err := sub.RunBatchSize(streamsCtx, c, batchSize, time.Second); err != nil {
				log.Errorf("avala-server: batch_size submitter exited: %v", err)
			}
		}()
	default: // per_tick, interval
		c := checker.New(keys.Submitter.CheckerURL, 10*time.Second)
		if err := sch.RegisterSubmitterScheduled(sub, c, keys.Submitter); err != nil {
			log.Fatal(err)
		}
	}

	api := &httpapi.API{Auth: auth.New(keys.Password), Handler: handler}
	r := mux.NewRouter()
	api.MountRoutes(r)

	server := &http.Server{
		Addr:         keys.Addr,
		Handler:      httpapi.WithMiddleware(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	listener, err := net.Listen("tcp", keys.Addr)
	if err != nil {
		log.Fatal(err)
	}

	sch.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("avala-server: listening at %s", keys.Addr)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeEnv.SystemdNotifiy(true, "running")
	<-sigs
	runtimeEnv.SystemdNotifiy(false, "shutting down")

	cancelStreams()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = sch.Shutdown()

	wg.Wait()
	log.Print("avala-server: graceful shutdown complete")
}
