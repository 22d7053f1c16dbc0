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

	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/cache"
	"storedash/backend/internal/config"
	"storedash/backend/internal/domain"
	"storedash/backend/internal/httpapi"
	"storedash/backend/internal/logger"
	"storedash/backend/internal/report"
	"storedash/backend/internal/service"
	"storedash/backend/internal/store"
	"storedash/backend/internal/store/memory"
	pgstore "storedash/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.DatabaseMigrate {
			if err := pgstore.Migrate(cfg.DatabaseURL, log); err != nil {
				log.Fatal("database migration failed", zap.Error(err))
			}
		}
		pg, err := pgstore.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(log)
		log.Info("repository: in-memory")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startupCtx); err != nil {
			log.Warn("redis unavailable, report cache disabled", zap.Error(err))
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("report cache: noop")
	}

	backend, err := newArchiveBackend(startupCtx, cfg, log)
	if err != nil {
		log.Fatal("archive backend unavailable", zap.Error(err))
	}
	archiveStore := archive.New(backend,
		archive.WithLogger(log),
		archive.WithMetadataCache(cfg.ArchiveMetadataCacheSize, cfg.ArchiveMetadataCacheTTL),
	)

	if cfg.ArchiveReconcileSchedule != "" {
		scheduler, err := archive.NewScheduler(archiveStore, cfg.ArchiveReconcileSchedule, cfg.OrphanGrace(), log)
		if err != nil {
			log.Fatal("invalid archive reconcile schedule", zap.Error(err))
		}
		scheduler.Start(ctx)
	}

	aggregator := report.NewAggregator(repo, reportCache, cfg.ReportCacheTTL(), log)
	svc := service.New(repo, aggregator, archiveStore, service.Options{
		DefaultTop:  cfg.ReportDefaultTop,
		MaxTop:      cfg.ReportMaxTop,
		PageSize:    cfg.DashboardPageSize,
		OrphanGrace: cfg.OrphanGrace(),
	}, log)

	auth := httpapi.NewAuthManager(startupCtx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, log)
	ensureOperatorAccounts(startupCtx, auth, cfg, log)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("storedash backend listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func newArchiveBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (archive.Backend, error) {
	switch cfg.ArchiveBackend {
	case config.BackendS3:
		backend, err := archive.NewS3Backend(ctx, archive.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		}, archive.WithS3Logger(log))
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Info("archive backend: s3", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
		return backend, nil
	default:
		backend, err := archive.NewFSBackend(cfg.ReportsDir)
		if err != nil {
			return nil, err
		}
		log.Info("archive backend: filesystem", zap.String("dir", cfg.ReportsDir))
		return backend, nil
	}
}

// ensureOperatorAccounts provisions the admin and staff logins from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD when they are set and missing.
func ensureOperatorAccounts(ctx context.Context, auth *httpapi.AuthManager, cfg config.Config, log *zap.Logger) {
	accounts := []struct {
		username string
		password string
		role     string
	}{
		{"admin", cfg.SeedAdminPassword, domain.RoleAdmin},
		{"staff", cfg.SeedStaffPassword, domain.RoleStaff},
	}
	for _, account := range accounts {
		if account.password == "" {
			continue
		}
		if _, err := auth.EnsureAccount(ctx, account.username, account.password, account.role); err != nil {
			log.Warn("provisioning operator account failed", zap.String("username", account.username), zap.Error(err))
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.ArchiveBackend {
	case config.BackendFS:
		if cfg.ReportsDir == "" {
			return fmt.Errorf("REPORTS_DIR must be set for the filesystem archive")
		}
	case config.BackendS3:
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must be set when ARCHIVE_BACKEND=s3")
		}
		if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set when ARCHIVE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be %q or %q", config.BackendFS, config.BackendS3)
	}
	if cfg.Production() && cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must not be * in production")
	}
	return nil
}
