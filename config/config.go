package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Lock     LockConfig     `yaml:"lock"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Payments PaymentsConfig `yaml:"payments"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type LockConfig struct {
	TTLMillis int `yaml:"ttl_ms"`
}

func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLMillis) * time.Millisecond
}

type BookingConfig struct {
	ReservationWindowMinutes int    `yaml:"reservation_window_minutes"`
	ServiceFeeRate           string `yaml:"service_fee_rate"`
	EventsCacheTTLSeconds    int    `yaml:"events_cache_ttl_seconds"`
}

func (b BookingConfig) ReservationWindow() time.Duration {
	return time.Duration(b.ReservationWindowMinutes) * time.Minute
}

func (b BookingConfig) EventsCacheTTL() time.Duration {
	return time.Duration(b.EventsCacheTTLSeconds) * time.Second
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	SweepBatchSize         int `yaml:"sweep_batch_size"`
	Concurrency            int `yaml:"concurrency"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.ExpirationSweepMinutes) * time.Minute
}

type PaymentsConfig struct {
	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
	Currency            string `yaml:"currency"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads the YAML file at path. A .env file in the working
// directory, if present, is loaded first so secrets can be supplied through
// the environment instead of the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML and fills defaults for anything left unset.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Lock.TTLMillis <= 0 {
		c.Lock.TTLMillis = 5000
	}
	if c.Booking.ReservationWindowMinutes <= 0 {
		c.Booking.ReservationWindowMinutes = 10
	}
	if c.Booking.ServiceFeeRate == "" {
		c.Booking.ServiceFeeRate = "0.15"
	}
	if c.Booking.EventsCacheTTLSeconds <= 0 {
		c.Booking.EventsCacheTTLSeconds = 30
	}
	if c.Worker.ExpirationSweepMinutes <= 0 {
		c.Worker.ExpirationSweepMinutes = 5
	}
	if c.Worker.SweepBatchSize <= 0 {
		c.Worker.SweepBatchSize = 100
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 10
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "ticketbooking-worker"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Database.Password, "DATABASE_PASSWORD")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Payments.StripeSecretKey, "STRIPE_SECRET_KEY")
	override(&c.Payments.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&c.Auth.JWTSecret, "AUTH_JWT_SECRET")
}
