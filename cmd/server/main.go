package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lojapdv/backend/internal/cache"
	"lojapdv/backend/internal/config"
	"lojapdv/backend/internal/httpapi"
	"lojapdv/backend/internal/latch"
	"lojapdv/backend/internal/logging"
	"lojapdv/backend/internal/service"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/store/memory"
	pgstore "lojapdv/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lojapdv",
		Short:        "Point of sale backend for a phone accessories store",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required to migrate")
			}
			version, err := pgstore.Migrate(cfg.DatabaseURL)
			if err != nil {
				log.WithError(err).Error("migration failed")
				return err
			}
			log.WithField("version", version).Info("schema up to date")
			return nil
		},
	})
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Error("invalid security configuration")
		return err
	}

	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.WithError(err).Warn("close error")
			}
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	catalogCache := cache.CatalogCache(cache.NewLocalCatalogCache())
	commitLatch := latch.Latch(latch.NewLocal())
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, using process-local cache and latch")
			_ = client.Close()
		} else {
			catalogCache = cache.NewRedisCatalogCache(client)
			commitLatch = latch.NewRedis(client, cfg.CommitLatchTTL(), log)
			closers = append(closers, client.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: local")
	}

	svc := service.New(repo, service.Options{
		DefaultStoreName:   cfg.DefaultStoreName,
		ReturnWindowDays:   cfg.ReturnWindowDays,
		AllowNegativeStock: cfg.AllowNegativeStock,
		CatalogCacheTTL:    cfg.CatalogCacheTTL(),
		Latch:              commitLatch,
		Cache:              catalogCache,
		Logger:             log,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Address()).Info("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server error")
			return err
		}
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	log.Info("server stopped")
	return nil
}

// openRepository picks postgres when DATABASE_URL is set and refuses to fall
// back to memory in that case.
func openRepository(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
	if cfg.MigrateOnStart {
		version, err := pgstore.Migrate(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate on start: %w", err)
		}
		log.WithField("version", version).Info("schema migrated")
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	log.Info("repository: postgres")
	return pg, pg.Close, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated digits, straight runs and a short list
// of common PINs.
func validatePINStrength(pin string) error {
	switch pin {
	case "123456", "654321", "121212", "112233", "123123", "102030":
		return fmt.Errorf("common PIN not allowed")
	}

	repeated, ascending, descending := true, true, true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			repeated = false
		}
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if repeated {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
