package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	GRPC     ServerConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Log      LogConfig
	Sentry   SentryConfig
	CORS     CORSConfig
	Razorpay RazorpayConfig
	Unlocks  UnlocksConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
	Env         string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	EntitlementTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type SentryConfig struct {
	DSN string
}

type CORSConfig struct {
	AllowOrigins []string
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBaseURL    string
	HTTPTimeout   time.Duration
}

// Validate reports the first missing provider secret. Missing secrets are a
// deployment error, not something a caller can retry around.
func (c RazorpayConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.KeyID) == "":
		return errors.New("RAZORPAY_KEY_ID environment variable is required")
	case strings.TrimSpace(c.KeySecret) == "":
		return errors.New("RAZORPAY_KEY_SECRET environment variable is required")
	case strings.TrimSpace(c.WebhookSecret) == "":
		return errors.New("RAZORPAY_WEBHOOK_SECRET environment variable is required")
	}
	return nil
}

// PricingConfig is the server-side price policy. Clients never supply amounts.
type PricingConfig struct {
	CampaignUnlockAmount      int64
	CampaignUnlockCurrency    string
	CampaignUnlockDescription string
}

type PlanLimits struct {
	CampaignLimit int32
}

// PlansConfig replaces the mutable plan table with a value built once in Load.
type PlansConfig struct {
	Free        PlanLimits
	Premium     PlanLimits
	RenewalDays int
}

func (p PlansConfig) Limits(plan string) PlanLimits {
	if strings.ToLower(strings.TrimSpace(plan)) == PlanPremium {
		return p.Premium
	}
	return p.Free
}

func (p PlansConfig) RenewalWindow() time.Duration {
	days := p.RenewalDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

type UnlocksConfig struct {
	Pricing             PricingConfig
	Plans               PlansConfig
	StoreTimeout        time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileMaxAge     time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval           time.Duration
	ExpireSubscriptionsInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "unlocks-service"),
			Env:         getEnv("APP_ENV", "production"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getIntEnv("REDIS_DB", 0),
			EntitlementTTL: getSecondsEnv("ENTITLEMENT_CACHE_TTL_SECONDS", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Sentry: SentryConfig{
			DSN: getEnv("SENTRY_DSN", ""),
		},
		CORS: CORSConfig{
			AllowOrigins: getListEnv("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Razorpay: RazorpayConfig{
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			APIBaseURL:    getEnv("RAZORPAY_API_BASE_URL", "https://api.razorpay.com"),
			HTTPTimeout:   getSecondsEnv("RAZORPAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Unlocks: UnlocksConfig{
			Pricing: PricingConfig{
				CampaignUnlockAmount:      int64(getIntEnv("CAMPAIGN_UNLOCK_AMOUNT", 49900)),
				CampaignUnlockCurrency:    strings.ToUpper(getEnv("CAMPAIGN_UNLOCK_CURRENCY", "INR")),
				CampaignUnlockDescription: getEnv("CAMPAIGN_UNLOCK_DESCRIPTION", "Lead magnet campaign unlock"),
			},
			Plans: PlansConfig{
				Free:        PlanLimits{CampaignLimit: int32(getIntEnv("PLAN_FREE_CAMPAIGN_LIMIT", 1))},
				Premium:     PlanLimits{CampaignLimit: int32(getIntEnv("PLAN_PREMIUM_CAMPAIGN_LIMIT", 50))},
				RenewalDays: getIntEnv("PLAN_PREMIUM_RENEWAL_DAYS", 30),
			},
			StoreTimeout:        getSecondsEnv("STORE_TIMEOUT_SECONDS", 5*time.Second),
			ReconcileStaleAfter: getMinutesEnv("RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			ReconcileMaxAge:     getHoursEnv("RECONCILE_MAX_AGE_HOURS", 48*time.Hour),
			JobBatchSize:        int32(getIntEnv("JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:           getMinutesEnv("RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
			ExpireSubscriptionsInterval: getMinutesEnv("EXPIRE_SUBSCRIPTIONS_INTERVAL_MINUTES", time.Hour),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
