package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/auth"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.BootstrapLogger()
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg).WithComponent(log.ComponentApp)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run serves until the signal context ends. Resources opened here are closed
// before it returns, so main can exit with a status code afterwards.
func run(logger *log.Logger, cfg *config.Config) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// A nil interface, not a typed nil, keeps the services from publishing.
	var events services.EventPublisher
	if client := cli.InitAMQP(ctx, logger, cfg, false); client != nil {
		defer client.Close()
		events = client
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := services.NewAuthService(repo, tokens, events, services.AuthConfig{
		BcryptCost:       cfg.BcryptCost,
		ResetTokenTTL:    cfg.ResetTokenTTL,
		ExposeResetToken: cfg.ExposeResetToken,
	}, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:               authService,
		Categories:         services.NewCategoryService(repo, logger),
		Transactions:       services.NewTransactionService(repo, events, logger),
		Analytics:          services.NewAnalyticsService(repo, logger),
		Tokens:             tokens,
		Store:              repo,
		Logger:             logger,
		CORSOrigin:         cfg.CORSOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"port", cfg.Port,
			"env", cfg.AppEnv,
			"amqp", events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := cli.ShutdownContext(shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
