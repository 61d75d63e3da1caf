package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/api"
	"github.com/vngrid/caseguard/internal/app"
	"github.com/vngrid/caseguard/internal/app/maintenance"
	"github.com/vngrid/caseguard/internal/cache"
	"github.com/vngrid/caseguard/internal/confidentiality"
	"github.com/vngrid/caseguard/internal/database"
	"github.com/vngrid/caseguard/internal/engine"
	"github.com/vngrid/caseguard/internal/handlers"
	"github.com/vngrid/caseguard/internal/notifications"
	"github.com/vngrid/caseguard/internal/services"
	"github.com/vngrid/caseguard/internal/zaken"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("caseguard-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store := selectCacheStore(cfg, db, log)
	defer func() {
		if rc, ok := store.(*cache.RedisStore); ok && rc != nil {
			_ = rc.Close()
		}
	}()

	scale, err := buildScale(cfg)
	if err != nil {
		return err
	}

	client, err := zaken.NewClient(cfg.Zaken.ClientConfig())
	if err != nil {
		return fmt.Errorf("initialise zaken client: %w", err)
	}
	resolver, err := zaken.NewCachingResolver(client, store, cfg.Zaken.CacheTTL)
	if err != nil {
		return fmt.Errorf("initialise caching resolver: %w", err)
	}

	eng, err := engine.New(db, resolver, scale)
	if err != nil {
		return fmt.Errorf("initialise decision engine: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}
	notifier, err := notifications.NewMailNotifier(mailer)
	if err != nil {
		return fmt.Errorf("initialise notifier: %w", err)
	}

	requestSvc, err := services.NewAccessRequestService(db, eng, notifier)
	if err != nil {
		return fmt.Errorf("initialise access request service: %w", err)
	}
	grantSvc, err := services.NewGrantService(db)
	if err != nil {
		return fmt.Errorf("initialise grant service: %w", err)
	}
	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		cleaner := maintenance.NewCleaner(db, auditSvc, maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		DB:      db,
		Access:  handlers.NewAccessHandler(eng, requestSvc, grantSvc, auditSvc),
		GinMode: cfg.Server.GinMode,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database.DatabaseSettings())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))

	return db, nil
}

// selectCacheStore prefers Redis, falls back to the in-process ristretto
// cache, and finally to the database-backed store.
func selectCacheStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) cache.Store {
	if cfg.Cache.Redis.Enabled {
		store, err := cache.NewRedisStore(cfg.Cache.RedisStoreConfig())
		if err != nil {
			log.Warn("redis unavailable; falling back to in-memory cache", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			return store
		}
	}

	store, err := cache.NewMemoryStore(cfg.Cache.Memory.MaxBytes)
	if err != nil {
		log.Warn("in-memory cache unavailable; falling back to database store", zap.Error(err))
		return cache.NewDatabaseStore(db)
	}
	return store
}

func buildScale(cfg *app.Config) (*confidentiality.Scale, error) {
	if len(cfg.Confidentiality.Levels) == 0 {
		return confidentiality.MustDefault(), nil
	}
	scale, err := confidentiality.NewScale(cfg.Confidentiality.Levels)
	if err != nil {
		return nil, fmt.Errorf("configure confidentiality scale: %w", err)
	}
	return scale, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
