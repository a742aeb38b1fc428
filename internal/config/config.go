package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel  string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string   `yaml:"log-format" env:"LOG_FORMAT" env-default:"json"`
	HTTPPort  string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Redis     Redis    `yaml:"redis"`
	Postgres  Postgres `yaml:"postgres"`
	Game      Game     `yaml:"game"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Postgres - the finished game archive is disabled when DSN is empty.
type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN" env-default:""`
}

type Game struct {
	MaxAttempts  int           `yaml:"max-attempts" env:"GAME_MAX_ATTEMPTS" env-default:"5"`
	RetryBackoff time.Duration `yaml:"retry-backoff" env:"GAME_RETRY_BACKOFF" env-default:"10ms"`
	StoreTimeout time.Duration `yaml:"store-timeout" env:"GAME_STORE_TIMEOUT" env-default:"2s"`
	TTL          time.Duration `yaml:"ttl" env:"GAME_TTL" env-default:"24h"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if config.Game.MaxAttempts < 1 {
		return nil, fmt.Errorf("game max-attempts must be positive, got %d", config.Game.MaxAttempts)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
