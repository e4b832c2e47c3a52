package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/db"
	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/notify"
	"github.com/zulandar/jobvalidator/internal/store"
	"github.com/zulandar/jobvalidator/internal/syncer"
	"github.com/zulandar/jobvalidator/internal/synclock"
	"github.com/zulandar/jobvalidator/internal/zuper"
)

// app is the wiring shared by commands that touch the store.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	db    *gorm.DB
	store *store.Store
}

// loadConfig reads the config and builds the logger. Logs go to stderr.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp loads config, connects and migrates the store.
func openApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, log, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		db.Close(gormDB)
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: gormDB, store: store.New(gormDB, log)}, nil
}

func (a *app) Close() error { return db.Close(a.db) }

// coordinator wires the API client, notifier and lock into a sync
// coordinator. The returned func closes the lock connection.
func (a *app) coordinator(ctx context.Context, onProgress func(syncer.Progress)) (*syncer.Coordinator, func() error, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, nil, err
	}
	opts := zuper.OptionsFromConfig(a.cfg.API)
	opts.Logger = a.log
	client, err := zuper.NewClient(opts)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := notify.FromConfig(a.cfg.Notify, a.store, a.log)
	if err != nil {
		return nil, nil, err
	}
	locker, closeLock, err := synclock.New(ctx, a.cfg.Lock)
	if err != nil {
		return nil, nil, err
	}

	deps := syncer.Deps{Source: client, Store: a.store, Locker: locker, Logger: a.log}
	if notifier != nil {
		deps.Notifier = notifier
	} else {
		a.log.Info("notifications disabled: no webhook configured")
	}
	syncOpts := syncer.OptionsFromConfig(a.cfg.Sync)
	syncOpts.OnProgress = onProgress
	coord, err := syncer.New(deps, syncOpts)
	if err != nil {
		closeLock()
		return nil, nil, err
	}
	return coord, closeLock, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
