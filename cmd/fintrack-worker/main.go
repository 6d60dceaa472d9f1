package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/mail"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.BootstrapLogger()
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

// run consumes events until the signal context ends, closing the database
// and broker connection before it returns.
func run(logger *log.Logger, cfg *config.Config) error {
	if !cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is required to run the worker")
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting fintrack-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ledgerCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid ledger configuration: %w", err)
	}
	ledger, err := backend.NewFactory(logger).CreateLedger(ctx, ledgerCfg)
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}

	client := cli.InitAMQP(ctx, logger, cfg, true)
	defer client.Close()

	w := worker.NewEventWorker(repo, ledger, newMailer(logger, cfg), cfg.AppBaseURL, logger)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.WorkerDedupEnabled() {
		seen := cache.NewLRUCache[time.Time](cfg.WorkerDedupSize, cfg.WorkerDedupTTL)
		w.WithDedup(seen)

		manager := cache.NewManager(logger)
		manager.Register(seen)
		g.Go(func() error {
			return manager.Run(gctx, time.Hour)
		})
	}
	g.Go(func() error {
		return client.Run(gctx, w.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event consumption: %w", err)
	}
	return nil
}

func newMailer(logger *log.Logger, cfg *config.Config) mail.Mailer {
	if !cfg.SMTPEnabled() {
		logger.Info("SMTP disabled, reset emails will be logged")
		return mail.NewLogMailer(logger)
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
