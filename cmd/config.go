package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/pkg/logger"
)

// InitConfig initializes Viper configuration.
// Values come from flags, SENSOR_HUB_* environment variables (a .env file is
// loaded first when present) and an optional config.yaml.
func InitConfig(cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sensor-hub/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SENSOR_HUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// PORT is what most hosting platforms inject.
	if err := viper.BindEnv("http.port", "SENSOR_HUB_HTTP_PORT", "PORT"); err != nil {
		return fmt.Errorf("failed to bind PORT: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(viper.GetString("log.level"))
	cfg.Format = logger.ParseFormat(viper.GetString("log.format"))
	return logger.New(cfg)
}

// storeDSN returns store.dsn when set and otherwise assembles a PostgreSQL
// DSN from the individual store.* keys.
func storeDSN(v *viper.Viper) string {
	if dsn := v.GetString("store.dsn"); dsn != "" {
		return dsn
	}

	if v.GetString("store.driver") == store.DriverSQLite {
		return "sensor_hub.db"
	}

	return store.PostgresDSN(
		v.GetString("store.host"),
		v.GetInt("store.port"),
		v.GetString("store.user"),
		v.GetString("store.password"),
		v.GetString("store.name"),
		v.GetString("store.sslmode"),
	)
}
