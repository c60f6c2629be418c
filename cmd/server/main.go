package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/agentchain/agentchain/internal/api/http"
	"github.com/agentchain/agentchain/internal/application/asset"
	"github.com/agentchain/agentchain/internal/application/auth"
	"github.com/agentchain/agentchain/internal/chain/rpcclient"
	"github.com/agentchain/agentchain/internal/config"
	"github.com/agentchain/agentchain/internal/infrastructure/blob"
	"github.com/agentchain/agentchain/internal/infrastructure/postgres"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories and infrastructure
	refreshRepo := postgres.NewRefreshTokenRepository(pool)
	registrationRepo := postgres.NewRegistrationRepository(pool)
	store, err := blob.NewFilesystemStore(cfg.BlobDir, logger)
	if err != nil {
		log.Fatalf("blob store error: %v", err)
	}
	chain := rpcclient.New(cfg.ChainRPCURL, nil)

	// services
	authSvc := auth.NewService([]byte(cfg.AuthSecret), refreshRepo, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.LoginNonceTTL, logger)
	assetSvc := asset.NewService(registrationRepo, store, chain, cfg.TermsPolicy, logger)

	// API server
	apiServer := httpapi.NewServer(authSvc, assetSvc, cfg.RefreshCookieName, cfg.RefreshCookieSecure, cfg.RefreshTokenTTL, cfg.MaxUploadBytes)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := authSvc.PurgeExpired(context.Background()); err == nil && n > 0 {
				logger.Info().Int("purged", n).Msg("expired refresh tokens removed")
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
