package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Kinis2025/sebelo/internal/api"
	"github.com/Kinis2025/sebelo/internal/cache"
	"github.com/Kinis2025/sebelo/internal/mqtt"
	"github.com/Kinis2025/sebelo/internal/readings"
	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/internal/weather"
	applog "github.com/Kinis2025/sebelo/pkg/logger"
	"github.com/Kinis2025/sebelo/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query server",
	Long: `Run the server that:
- Accepts TTN uplink webhooks on /ingest (and /ttn)
- Optionally subscribes to TTN uplinks over MQTT
- Persists readings and device locations
- Serves latest readings, history, locations and wind`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.Int("http-port", 8080, "HTTP server port")
	f.StringSlice("cors-origins", []string{"*"}, "allowed dashboard origins")
	f.String("store-driver", store.DriverPostgres, "store driver (postgres, sqlite)")
	f.String("store-dsn", "", "store DSN; overrides the db-* flags")
	f.String("db-host", "localhost", "PostgreSQL host")
	f.Int("db-port", 5432, "PostgreSQL port")
	f.String("db-user", "postgres", "PostgreSQL user")
	f.String("db-password", "", "PostgreSQL password")
	f.String("db-name", "sensors", "PostgreSQL database name")
	f.String("db-sslmode", "disable", "PostgreSQL SSL mode")
	f.Duration("store-health-interval", 10*time.Second, "interval between store health checks")
	f.Duration("store-connect-timeout", 30*time.Second, "how long to wait for the store before serving anyway")
	f.String("cache-backend", cache.BackendMemory, "latest-reading cache (none, memory, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for the redis cache")
	f.String("redis-password", "", "Redis password")
	f.String("weather-provider", weather.ProviderOpenWeather, "wind provider (openweather, openmeteo)")
	f.String("weather-api-key", "", "OpenWeatherMap API key")
	f.Duration("weather-timeout", 5*time.Second, "wind lookup timeout")
	f.String("mqtt-broker", "", "TTN MQTT broker host; empty disables the subscriber")
	f.Int("mqtt-port", 1883, "TTN MQTT broker port")
	f.String("mqtt-username", "", "TTN MQTT username (application id)")
	f.String("mqtt-password", "", "TTN MQTT password (API key)")
	f.String("mqtt-topic", mqtt.DefaultTopic, "TTN MQTT uplink topic")

	bindings := map[string]string{
		"http.port":             "http-port",
		"http.cors_origins":     "cors-origins",
		"store.driver":          "store-driver",
		"store.dsn":             "store-dsn",
		"store.host":            "db-host",
		"store.port":            "db-port",
		"store.user":            "db-user",
		"store.password":        "db-password",
		"store.name":            "db-name",
		"store.sslmode":         "db-sslmode",
		"store.health_interval": "store-health-interval",
		"store.connect_timeout": "store-connect-timeout",
		"cache.backend":         "cache-backend",
		"cache.redis_addr":      "redis-addr",
		"cache.redis_password":  "redis-password",
		"weather.provider":      "weather-provider",
		"weather.api_key":       "weather-api-key",
		"weather.timeout":       "weather-timeout",
		"mqtt.broker":           "mqtt-broker",
		"mqtt.port":             "mqtt-port",
		"mqtt.username":         "mqtt-username",
		"mqtt.password":         "mqtt-password",
		"mqtt.topic":            "mqtt-topic",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting sensor hub")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeMetrics := metrics.NewStoreMetrics(nil, metrics.Namespace)
	pool, err := store.NewPool(&store.PoolConfig{
		Logger:         applog.WithComponent(logger, "store"),
		Metrics:        storeMetrics,
		Driver:         viper.GetString("store.driver"),
		DSN:            storeDSN(viper.GetViper()),
		HealthInterval: viper.GetDuration("store.health_interval"),
	})
	if err != nil {
		logger.Error("failed to create store pool", "error", err)
		return err
	}
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start store pool: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("failed to close store pool", "error", err)
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, viper.GetDuration("store.connect_timeout"))
	if err := pool.WaitHealthy(waitCtx); err != nil {
		// Requests answer 503 until the supervisor connects.
		logger.Warn("store not reachable yet, serving anyway", "error", err)
	}
	waitCancel()

	readingStore, err := store.NewReadingStore(pool)
	if err != nil {
		return err
	}
	locationStore, err := store.NewLocationStore(pool)
	if err != nil {
		return err
	}

	latestCache, err := cache.New(ctx, &cache.Config{
		Logger:        applog.WithComponent(logger, "cache"),
		Backend:       viper.GetString("cache.backend"),
		RedisAddr:     viper.GetString("cache.redis_addr"),
		RedisPassword: viper.GetString("cache.redis_password"),
	})
	if err != nil {
		logger.Error("failed to create latest-reading cache", "error", err)
		return err
	}
	if latestCache != nil {
		defer func() {
			if err := latestCache.Close(); err != nil {
				logger.Error("failed to close latest-reading cache", "error", err)
			}
		}()
	}

	service, err := readings.NewService(&readings.Config{
		Logger:  applog.WithComponent(logger, "readings"),
		Store:   readingStore,
		Cache:   latestCache,
		Metrics: metrics.NewIngestMetrics(nil, metrics.Namespace),
	})
	if err != nil {
		return err
	}

	serverCfg := &api.ServerConfig{
		Logger:      applog.WithComponent(logger, "api"),
		Readings:    service,
		Locations:   locationStore,
		Health:      pool,
		Metrics:     metrics.NewHTTPMetrics(nil, metrics.Namespace),
		CORSOrigins: viper.GetStringSlice("http.cors_origins"),
		HTTPPort:    viper.GetInt("http.port"),
	}

	windService, err := newWindService(logger, locationStore)
	switch {
	case err != nil:
		logger.Error("failed to create wind service", "error", err)
		return err
	case windService == nil:
		logger.Warn("wind lookup disabled: no weather API key configured")
	default:
		serverCfg.Wind = windService
	}

	if broker := viper.GetString("mqtt.broker"); broker != "" {
		subscriber, err := mqtt.NewSubscriber(&mqtt.Config{
			Logger:   applog.WithComponent(logger, "mqtt"),
			Ingester: service,
			Broker:   broker,
			Port:     viper.GetInt("mqtt.port"),
			Username: viper.GetString("mqtt.username"),
			Password: viper.GetString("mqtt.password"),
			Topic:    viper.GetString("mqtt.topic"),
		})
		if err != nil {
			logger.Error("failed to create mqtt subscriber", "error", err)
			return err
		}
		defer subscriber.Disconnect()

		// paho keeps retrying in the background; the webhook keeps working meanwhile.
		go func() {
			if err := subscriber.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mqtt connect failed", "error", err)
			}
		}()
	}

	server, err := api.NewServer(serverCfg)
	if err != nil {
		logger.Error("failed to create API server", "error", err)
		return err
	}

	logger.Info("sensor hub configuration",
		"http_port", serverCfg.HTTPPort,
		"store_driver", viper.GetString("store.driver"),
		"cache_backend", viper.GetString("cache.backend"),
		"weather_provider", viper.GetString("weather.provider"),
		"mqtt_broker", viper.GetString("mqtt.broker"),
	)

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("sensor hub stopped")
	return nil
}

// newWindService returns nil without error when the provider needs a key
// that is not configured.
func newWindService(logger *slog.Logger, locations weather.Locations) (*weather.WindService, error) {
	name := viper.GetString("weather.provider")
	apiKey := viper.GetString("weather.api_key")
	if (name == weather.ProviderOpenWeather || name == "") && apiKey == "" {
		return nil, nil
	}

	provider, err := weather.NewProvider(&weather.ProviderConfig{
		Name:   name,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}

	return weather.NewWindService(&weather.ServiceConfig{
		Logger:    applog.WithComponent(logger, "weather"),
		Locations: locations,
		Provider:  provider,
		Metrics:   metrics.NewWeatherMetrics(nil, metrics.Namespace),
		Timeout:   viper.GetDuration("weather.timeout"),
	})
}
