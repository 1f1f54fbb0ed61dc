// Package config loads service configuration via viper, following
// auth-service/internal/config/config.go: mapstructure-tagged nested
// structs, defaults set before load, env vars bound per key, an optional
// YAML file.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string   `mapstructure:"environment"`
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	Database    Database `mapstructure:"database"`
	Redis       Redis    `mapstructure:"redis"`
	NATS        NATS     `mapstructure:"nats"`
	Booking     Booking  `mapstructure:"booking"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type Redis struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATS struct {
	URL string `mapstructure:"url"`
}

// Booking holds the scheduling/business rules config enumerated in spec §6.
type Booking struct {
	OptionTokenSecret   string        `mapstructure:"option_token_secret"`
	OptionTokenTTL      time.Duration `mapstructure:"option_token_ttl"`
	SlotIntervalMinutes int           `mapstructure:"slot_interval_minutes"`
	OptionsLimit        int           `mapstructure:"options_limit"`
	ShopTimezone        string        `mapstructure:"shop_timezone"`
	CancelWindowMinutes int           `mapstructure:"cancel_window_minutes"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("environment", "ENVIRONMENT")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.BindEnv("booking.option_token_secret", "OPTION_TOKEN_SECRET")
	viper.BindEnv("booking.option_token_ttl", "OPTION_TOKEN_TTL_SECONDS")
	viper.BindEnv("booking.slot_interval_minutes", "SLOT_INTERVAL_MINUTES")
	viper.BindEnv("booking.options_limit", "OPTIONS_LIMIT")
	viper.BindEnv("booking.shop_timezone", "SHOP_TIMEZONE")
	viper.BindEnv("booking.cancel_window_minutes", "CANCEL_WINDOW_MINUTES")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// OPTION_TOKEN_TTL_SECONDS carries a bare number of seconds; convert it
	// so it decodes into the time.Duration field.
	if secs, err := strconv.Atoi(viper.GetString("booking.option_token_ttl")); err == nil {
		viper.Set("booking.option_token_ttl", time.Duration(secs)*time.Second)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "booking")
	viper.SetDefault("database.password", "booking_password")
	viper.SetDefault("database.name", "booking_core")
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("nats.url", "nats://localhost:4222")

	viper.SetDefault("booking.option_token_secret", "change-me-in-production")
	viper.SetDefault("booking.option_token_ttl", "300s")
	viper.SetDefault("booking.slot_interval_minutes", 5)
	viper.SetDefault("booking.options_limit", 20)
	viper.SetDefault("booking.shop_timezone", "America/Bogota")
	viper.SetDefault("booking.cancel_window_minutes", 30)
}
