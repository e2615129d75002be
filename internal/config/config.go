package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Channel  ChannelConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL   string
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type ChannelConfig struct {
	WebhookURL string
}

type SweepConfig struct {
	Interval      time.Duration
	InactiveAfter time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	webhookURL, err := requireEnv("CHANNEL_WEBHOOK_URL")
	if err != nil {
		errs = append(errs, err)
	}

	sweepInterval, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err)
	}
	inactiveDays, err := getEnvInt("SWEEP_INACTIVE_DAYS", 30)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL:   postgresURL,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "db/migrations"),
		},
		Channel: ChannelConfig{
			WebhookURL: webhookURL,
		},
		Sweep: SweepConfig{
			Interval:      time.Duration(sweepInterval) * time.Second,
			InactiveAfter: time.Duration(inactiveDays) * 24 * time.Hour,
		},
		Redis: redisCfg,
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sweep.InactiveAfter <= 0 {
		errs = append(errs, errors.New("SWEEP_INACTIVE_DAYS must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return errors.Join(nonNil...)
}
