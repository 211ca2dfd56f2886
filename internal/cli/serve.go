// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
	"github.com/jeremyhahn/go-passkey/internal/store/postgres"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the passkey authentication server",
	Long: `Start the HTTP server that handles WebAuthn registration and
authentication ceremonies. With a database DSN configured, users,
credentials and challenges persist in PostgreSQL; otherwise the server
runs with in-memory stores.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		userStore      passkey.UserStore
		credStore      passkey.CredentialStore
		challengeStore passkey.ChallengeStore
	)

	if cfg.Database.DSN != "" {
		store, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Challenge.TTL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()

		userStore = store.Users()
		credStore = store.Credentials()
		challengeStore = store.Challenges()
		logger.Info("using postgresql stores")
	} else {
		userStore = passkey.NewMemoryUserStore()
		credStore = passkey.NewMemoryCredentialStore()
		challengeStore = passkey.NewMemoryChallengeStore(cfg.Challenge.TTL)
		logger.Warn("no database configured, using in-memory stores")
	}

	issuer, err := passkey.NewJWTIssuer([]byte(cfg.Token.Secret), cfg.Token.TTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	passkeyConfig := cfg.PasskeyConfig()
	service, err := passkey.NewService(passkey.ServiceParams{
		Config:          &passkeyConfig,
		UserStore:       userStore,
		CredentialStore: credStore,
		ChallengeStore:  challengeStore,
		TokenIssuer:     issuer,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create passkey service: %w", err)
	}

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	server, err := rest.NewServer(&rest.Config{
		Addr:           cfg.ListenAddr(),
		Service:        service,
		AllowedOrigins: cfg.RelyingParty.Origins,
		TLSConfig:      tlsConfig,
		Metrics: rest.MetricsConfig{
			Enabled: cfg.Metrics.Enabled,
			Path:    cfg.Metrics.Path,
		},
		Logger:       logger,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sweeper := passkey.NewSweeper(challengeStore, cfg.Challenge.SweepInterval, logger)
	go sweeper.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("passkey server started",
		"addr", cfg.ListenAddr(),
		"rp_id", cfg.RelyingParty.ID,
		"version", Version)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
