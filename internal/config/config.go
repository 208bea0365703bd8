package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Engine   EngineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type GatewayConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type EngineConfig struct {
	// GlobalRatePerSec caps the aggregate gateway send rate across all
	// concurrently running operations. 0 disables the limiter.
	GlobalRatePerSec int
	GlobalBurst      int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Gateway: GatewayConfig{
			URL:     mustEnv("GATEWAY_URL"),
			Token:   os.Getenv("GATEWAY_TOKEN"),
			Timeout: time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Engine: EngineConfig{
			GlobalRatePerSec: getEnvInt("ENGINE_GLOBAL_RATE_PER_SEC", 20),
			GlobalBurst:      getEnvInt("ENGINE_GLOBAL_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 30)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Gateway.Timeout <= 0 {
		panic("GATEWAY_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Engine.GlobalRatePerSec < 0 {
		panic("ENGINE_GLOBAL_RATE_PER_SEC must be >= 0")
	}
	if cfg.Engine.GlobalRatePerSec > 0 && cfg.Engine.GlobalBurst <= 0 {
		panic("ENGINE_GLOBAL_BURST must be > 0 when the rate limiter is enabled")
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		panic("REDIS_TTL_SECONDS must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("invalid bool for env %s: %s", key, v))
	}
	return b
}
