package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldware/fieldsync/internal/config"
	"github.com/fieldware/fieldsync/internal/connectivity"
	"github.com/fieldware/fieldsync/internal/engine"
	"github.com/fieldware/fieldsync/internal/gateway"
	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

// app bundles the wired components a command needs. Commands that touch
// the server call probe() first so the connectivity oracle has a real
// reading.
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   *logrus.Logger
	db       *store.DB
	client   *remote.Client
	monitor  *connectivity.Monitor
	engine   *engine.Engine
	gateways *gateway.Gateways

	onEvent func(engine.Event)
}

// newApp loads configuration and wires the full stack. The connectivity
// monitor is created but not started; one-shot commands call probe(), the
// daemon calls monitor.Start.
func newApp() (*app, error) {
	loader, err := config.NewLoader(configDir)
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config (run 'fieldsync init' first): %w", err)
	}

	logger := newLogger(cfg)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.ServerURL, cfg.APIToken, nil, logger)

	probeURL := cfg.ProbeURL
	if probeURL == "" {
		probeURL = cfg.ServerURL
	}
	monitor := connectivity.NewMonitor(connectivity.HTTPProber(probeURL, nil), cfg.ProbeInterval)

	a := &app{
		cfg:     cfg,
		loader:  loader,
		logger:  logger,
		db:      db,
		client:  client,
		monitor: monitor,
	}

	a.engine, err = engine.New(engine.Config{
		Store:  db,
		Remote: client,
		Oracle: monitor,
		UserID: cfg.UserID,
		Logger: logger,
		OnEvent: func(e engine.Event) {
			if a.onEvent != nil {
				a.onEvent(e)
			}
		},
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a.gateways, err = gateway.New(gateway.Deps{
		Store:  db,
		Remote: client,
		Oracle: monitor,
		Logger: logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// probe takes a single connectivity reading so Online() reflects reality
// for one-shot commands.
func (a *app) probe(ctx context.Context) bool {
	probeURL := a.cfg.ProbeURL
	if probeURL == "" {
		probeURL = a.cfg.ServerURL
	}
	online := connectivity.HTTPProber(probeURL, nil)(ctx)
	a.monitor.Set(online)
	return online
}

func (a *app) Close() error {
	return a.db.Close()
}

// newLogger builds the structured logger: stderr by default, a rotated
// file when one is configured.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return logger
}

// today is the call date used for store pulls and schedule creation.
func today() record.Date {
	return record.DateOf(time.Now())
}
