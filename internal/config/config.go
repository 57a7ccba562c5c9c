package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env          string `env:"APP_ENV" env-default:"dev"`
	Port         int    `env:"PORT" env-default:"8080"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" env-default:"eventuras-sync"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	JWTSecret    string `env:"JWT_SECRET" env-default:"dev-secret-change-me"`

	AdminRoles  []string `env:"ADMIN_ROLES" env-separator:"," env-default:"admin,systemadmin"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`

	DB           DBConfig
	Redis        RedisConfig
	Sync         SyncConfig
	Notification NotificationConfig
	Worker       WorkerConfig
}

type DBConfig struct {
	URL      string `env:"DB_URL"`
	Host     string `env:"DB_HOST" env-default:"127.0.0.1"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"eventuras"`
	Password string `env:"DB_PASSWORD" env-default:"eventuras"`
	Name     string `env:"DB_NAME" env-default:"eventuras"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" env-default:"10"`
	Migrate  bool   `env:"DB_MIGRATE" env-default:"true"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type SyncConfig struct {
	PageSize int           `env:"SYNC_PAGE_SIZE" env-default:"100"`
	LockTTL  time.Duration `env:"SYNC_LOCK_TTL" env-default:"10m"`
	// RequestTimeout bounds a synchronous run started over HTTP.
	RequestTimeout time.Duration `env:"SYNC_REQUEST_TIMEOUT" env-default:"5m"`
	// Providers holds "name:kind:strategy" entries, e.g. "moodle:webhook:per-user".
	Providers      []string      `env:"SYNC_PROVIDERS" env-separator:","`
	WebhookURL     string        `env:"SYNC_WEBHOOK_URL"`
	WebhookToken   string        `env:"SYNC_WEBHOOK_TOKEN"`
	WebhookTimeout time.Duration `env:"SYNC_WEBHOOK_TIMEOUT" env-default:"10s"`
}

type NotificationConfig struct {
	Delivery         string        `env:"NOTIFICATION_DELIVERY" env-default:"queue"`
	Timeout          time.Duration `env:"NOTIFIER_TIMEOUT" env-default:"3s"`
	FailureThreshold int           `env:"NOTIFIER_FAILURE_THRESHOLD" env-default:"3"`
	Cooldown         time.Duration `env:"NOTIFIER_COOLDOWN" env-default:"15s"`
	MaxAttempts      int           `env:"NOTIFICATION_MAX_ATTEMPTS" env-default:"5"`
	StaleAfter       time.Duration `env:"NOTIFICATION_STALE_AFTER" env-default:"5m"`
	RateLimit        int           `env:"NOTIFICATION_RATE_LIMIT" env-default:"30"`
	RateWindow       time.Duration `env:"NOTIFICATION_RATE_WINDOW" env-default:"1m"`
}

type WorkerConfig struct {
	Concurrency  int           `env:"WORKER_CONCURRENCY" env-default:"4"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" env-default:"500ms"`
	HealthPort   int           `env:"WORKER_HEALTH_PORT" env-default:"8081"`
	StaleAfter   time.Duration `env:"WORKER_STALE_AFTER" env-default:"5m"`
	JobTimeout   time.Duration `env:"WORKER_JOB_TIMEOUT" env-default:"15m"`
	BackoffBase  time.Duration `env:"WORKER_BACKOFF_BASE" env-default:"2s"`
	BackoffMax   time.Duration `env:"WORKER_BACKOFF_MAX" env-default:"5m"`
}

const (
	DeliveryQueue  = "queue"
	DeliveryDirect = "direct"
)

type ProviderSpec struct {
	Name     string
	Kind     string
	Strategy string
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	switch c.Notification.Delivery {
	case DeliveryQueue, DeliveryDirect:
	default:
		return fmt.Errorf("invalid NOTIFICATION_DELIVERY %q", c.Notification.Delivery)
	}
	if c.Sync.PageSize <= 0 {
		return errors.New("SYNC_PAGE_SIZE must be positive")
	}
	if _, err := c.Sync.ProviderSpecs(); err != nil {
		return err
	}
	return nil
}

func (d DBConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

func (s SyncConfig) ProviderSpecs() ([]ProviderSpec, error) {
	specs := make([]ProviderSpec, 0, len(s.Providers))
	for _, raw := range s.Providers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid SYNC_PROVIDERS entry %q, want name:kind:strategy", raw)
		}
		specs = append(specs, ProviderSpec{Name: parts[0], Kind: parts[1], Strategy: parts[2]})
	}
	return specs, nil
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
