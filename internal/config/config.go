package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	OpenSea OpenSea `yaml:"opensea"`
	Monitor Monitor `yaml:"monitor"`
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
	Bot     Bot     `yaml:"bot"`
}

type OpenSea struct {
	BaseURL  string        `yaml:"base_url" env:"OPENSEA_BASE_URL" env-default:"https://api.opensea.io/v2"`
	APIKey   string        `yaml:"api_key" env:"OPENSEA_API_KEY"`
	Timeout  time.Duration `yaml:"timeout" env:"OPENSEA_TIMEOUT" env-default:"10s"`
	Spacing  time.Duration `yaml:"spacing" env:"OPENSEA_SPACING" env-default:"1s"`
	Cooldown time.Duration `yaml:"cooldown" env:"OPENSEA_COOLDOWN" env-default:"5s"`
}

type Monitor struct {
	Interval time.Duration `yaml:"interval" env:"MONITOR_INTERVAL" env-default:"5m"`
	Workers  int           `yaml:"workers" env:"MONITOR_WORKERS" env-default:"1"`
}

type Storage struct {
	Driver        string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
	Path          string `yaml:"path" env:"STORAGE_PATH" env-default:"tracked_collections.json"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisKey      string `yaml:"redis_key" env:"REDIS_KEY" env-default:"floorbot:tracked"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresName  string `yaml:"postgres_name" env:"POSTGRES_STATE_NAME" env-default:"tracked_collections"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
	Dir    string `yaml:"dir" env:"LOG_DIR"`
}

type Bot struct {
	HotLogin      bool   `yaml:"hot_login" env:"BOT_HOT_LOGIN" env-default:"false"`
	HotReloadPath string `yaml:"hot_reload_path" env:"BOT_HOT_RELOAD_PATH" env-default:"storage.json"`
	RenderImages  bool   `yaml:"render_images" env:"BOT_RENDER_IMAGES" env-default:"false"`
}

// Load reads .env (if present), then the YAML file at path (if present),
// then the environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenSea.Timeout <= 0 {
		return fmt.Errorf("opensea.timeout must be positive, got %s", c.OpenSea.Timeout)
	}
	if c.OpenSea.Spacing <= 0 {
		return fmt.Errorf("opensea.spacing must be positive, got %s", c.OpenSea.Spacing)
	}
	if c.OpenSea.Cooldown <= c.OpenSea.Spacing {
		return fmt.Errorf("opensea.cooldown (%s) must exceed opensea.spacing (%s)", c.OpenSea.Cooldown, c.OpenSea.Spacing)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.Workers < 1 {
		c.Monitor.Workers = 1
	}

	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the file driver")
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
