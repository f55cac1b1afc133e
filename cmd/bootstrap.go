package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-unlocks/app/cache"
	"github.com/vibast-solutions/ms-go-unlocks/app/provider"
	"github.com/vibast-solutions/ms-go-unlocks/app/repository"
	"github.com/vibast-solutions/ms-go-unlocks/app/service"
	"github.com/vibast-solutions/ms-go-unlocks/config"
)

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

// newRedisClient returns nil when REDIS_ADDR is unset. An unreachable cache
// is logged, not fatal: entitlement reads fall back to MySQL.
func newRedisClient(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Could not connect to entitlement cache")
	}
	return client
}

func mustCreateUnlockService() (*config.Config, *service.UnlockService, *sql.DB, func()) {
	cfg := mustLoadConfig()
	flushSentry := initSentry(cfg)
	db := mustOpenDatabase(cfg)
	redisClient := newRedisClient(cfg)

	orderRepo := repository.NewOrderRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	entitlementCache := cache.NewEntitlementCache(redisClient, cfg.Redis.EntitlementTTL)

	razorpayProvider := provider.NewRazorpayProvider(provider.RazorpayConfig{
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		APIBaseURL:    cfg.Razorpay.APIBaseURL,
		HTTPTimeout:   cfg.Razorpay.HTTPTimeout,
	})

	providerRegistry := provider.NewRegistry(razorpayProvider)
	unlockService := service.NewUnlockService(
		orderRepo,
		entitlementRepo,
		entitlementCache,
		providerRegistry,
		cfg.Unlocks,
	)

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close entitlement cache")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
		flushSentry()
	}

	return cfg, unlockService, db, cleanup
}
