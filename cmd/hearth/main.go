package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/api"
	"github.com/hearthcrm/hearth/pkg/audit"
	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/config"
	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/observability"
	"github.com/hearthcrm/hearth/pkg/records"
	"github.com/hearthcrm/hearth/pkg/reporting"
	"github.com/hearthcrm/hearth/pkg/roles"
	"github.com/hearthcrm/hearth/pkg/security"
	"github.com/hearthcrm/hearth/pkg/sharing"
	"github.com/hearthcrm/hearth/pkg/webhooks"
)

const metadataCacheSize = 256

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("failed to reach database")
	}

	if err := runMigrations(ctx, db); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, sharing cache falls back to direct evaluation")
		}
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	auditLogger, err := audit.NewDBLogger(ctx, db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize audit log")
	}
	defer auditLogger.Close()

	metadataStore := metadata.NewStore(db)
	if err := metadata.InitializeStandardObjects(ctx, metadataStore); err != nil {
		logger.WithError(err).Fatal("failed to seed standard objects")
	}
	cachedMetadata, err := metadata.NewCachedStore(metadataStore, metadataCacheSize)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize metadata cache")
	}

	roleStore := roles.NewStore(db)
	if err := roles.InitializeBuiltInRoles(ctx, roleStore); err != nil {
		logger.WithError(err).Fatal("failed to seed built-in roles")
	}

	shareStore := sharing.NewStore(db)
	evaluator := sharing.NewEvaluator(shareStore, redisClient, cfg.Redis.CacheTTL, logger, metrics)

	builder := security.NewBuilder(cachedMetadata, roleStore, evaluator, logger, metrics)

	authStore := auth.NewStore(db)

	webhookStore := webhooks.NewStore(db)
	manager := webhooks.NewManager(webhookStore, cfg.Webhooks.Timeout,
		cfg.Webhooks.MaxRetries, cfg.Webhooks.RetryInterval, logger, metrics)

	recordStore := records.NewStore(db)
	recordService := records.NewService(recordStore, cachedMetadata, builder,
		shareStore, evaluator, manager, auditLogger, logger)

	registrars := []api.RouteRegistrar{
		metadata.NewHandlers(cachedMetadata, logger),
		roles.NewHandlers(roleStore, logger, auditLogger, manager),
		sharing.NewHandlers(shareStore, logger, auditLogger),
		records.NewHandlers(recordService, logger),
		auth.NewHandlers(authStore, logger, auditLogger),
		webhooks.NewHandlers(webhookStore, manager, logger),
		audit.NewHandlers(auditLogger),
	}

	if cfg.Reporting.DefinitionsDir != "" {
		reports := reporting.NewRegistry(cfg.Reporting.DefinitionsDir, logger)
		if err := reports.Load(); err != nil {
			logger.WithError(err).Fatal("failed to load report definitions")
		}
		if cfg.Reporting.HotReload {
			go reports.Watch(ctx)
		}
		runner := reporting.NewRunner(reports, recordStore, cachedMetadata, roleStore, logger)
		registrars = append(registrars, reporting.NewHandlers(reports, runner, logger))
	}

	jobs, err := api.NewJobs(cfg, logger, db, authStore, roleStore, shareStore,
		recordStore, manager, metrics)
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule background jobs")
	}
	jobs.Start()
	defer jobs.Stop()

	server := api.NewServer(cfg, logger, db, redisClient, registry, metrics, authStore, registrars...)
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server exited with error")
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	migrations := []func(context.Context, *sql.DB) error{
		metadata.RunMigrations,
		roles.RunMigrations,
		sharing.RunMigrations,
		auth.RunMigrations,
		webhooks.RunMigrations,
		records.RunMigrations,
	}
	for _, migrate := range migrations {
		if err := migrate(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
