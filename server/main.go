package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/nakshatratalks/consult-engine/server/adaptor"
	"github.com/nakshatratalks/consult-engine/server/config"
	"github.com/nakshatratalks/consult-engine/server/domain"
	"github.com/nakshatratalks/consult-engine/server/ledger"
	"github.com/nakshatratalks/consult-engine/server/notify"
	"github.com/nakshatratalks/consult-engine/server/repository"
	"github.com/nakshatratalks/consult-engine/server/usecase"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		log.WithError(err).Fatal("failed to migrate db")
	}
	repo := repository.NewRepository(db)

	var led usecase.Ledger
	if cfg.LedgerURL != "" {
		led = ledger.NewClient(cfg.LedgerURL, cfg.Lifecycle.LedgerTimeout, log)
	} else {
		log.Warn("no ledger_url configured, using in-process ledger")
		led = ledger.NewMemory(cfg.DefaultBalance)
	}

	var sink usecase.NotificationSink
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to broker")
		}
		defer amqpSink.Close()
		sink = amqpSink
	} else {
		log.Warn("no amqp_url configured, notifications go to the log")
		sink = &notify.LogSink{Log: log}
	}

	hub := domain.NewChannelHub()
	channelPolicy := domain.ChannelPolicy{
		ConnectTimeout:    cfg.Channel.ConnectTimeout,
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectBackoff:  cfg.Channel.ReconnectBackoff,
	}
	channelAdapter := domain.NewChannelAdapter(hub, channelPolicy, log.WithField("component", "channel"))

	engineCfg := usecase.Config{
		Billing: domain.BillingPolicy{
			MinimumFloorMinutes: cfg.Billing.MinimumFloorMinutes,
			TickInterval:        cfg.Billing.TickInterval,
		},
		Queue: domain.QueuePolicy{
			HoldWindow:             cfg.Queue.HoldWindow,
			DefaultWaitPerPosition: cfg.Queue.DefaultWaitPerPosition,
		},
		Lifecycle: usecase.LifecyclePolicy{
			InactivityWarning:    cfg.Lifecycle.InactivityWarning,
			InactivityTimeout:    cfg.Lifecycle.InactivityTimeout,
			ContinuationInterval: cfg.Lifecycle.ContinuationInterval,
			LowBalanceWarning:    cfg.Lifecycle.LowBalanceWarning,
			LedgerTimeout:        cfg.Lifecycle.LedgerTimeout,
		},
	}
	engine := usecase.NewEngine(engineCfg, channelAdapter, led, sink, repo, usecase.Callbacks{}, log.WithField("component", "engine"))

	settlements := usecase.NewSettlementWorker(repo, led, time.Minute, cfg.Lifecycle.LedgerTimeout, log.WithField("component", "settlement"))
	go settlements.Run()

	router := gin.New()
	router.Use(gin.Recovery())
	adaptor.NewHandler(engine, log).Register(router)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
	settlements.Stop()
	if err := engine.Shutdown(ctx); err != nil {
		log.WithError(err).Error("engine shutdown incomplete")
	}
	log.Info("bye")
}
