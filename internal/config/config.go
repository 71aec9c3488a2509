package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	JWTSecret       string
	EventChannel    string
	SSEKeepAlive    time.Duration
	SendRateLimit   int
	SendRateWindow  time.Duration
	SeedEnabled     bool
	SeedToken       string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SAPA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SAPA API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("event.channel", "sapa")
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("send.rate_limit", 30)
	v.SetDefault("send.rate_window", "1m")
	v.SetDefault("seed.enabled", false)

	keepAlive, err := time.ParseDuration(v.GetString("sse.keepalive"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sse keepalive: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("send.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid send rate window: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		JWTSecret:      v.GetString("jwt.secret"),
		EventChannel:   v.GetString("event.channel"),
		SSEKeepAlive:   keepAlive,
		SendRateLimit:  v.GetInt("send.rate_limit"),
		SendRateWindow: rateWindow,
		SeedEnabled:    v.GetBool("seed.enabled"),
		SeedToken:      v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SendRateLimit <= 0 {
		cfg.SendRateLimit = 30
	}

	return cfg, nil
}
