package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-data/internal/config"
	"portal-data/internal/database"
	"portal-data/internal/demo"
	"portal-data/internal/deploy"
	"portal-data/internal/events"
	"portal-data/internal/guard"
	httpapi "portal-data/internal/http"
	"portal-data/internal/logger"
	"portal-data/internal/query"
	"portal-data/internal/service"
	"portal-data/internal/store"
	"portal-data/internal/tenant"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "portal-data")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		dataStore query.Store
		resolver  tenant.Resolver
		db        *sqlx.DB
	)
	switch cfg.DataSource {
	case config.DataSourceMock:
		mem, memResolver, err := demo.NewMockDataProvider(ctx, log)
		if err != nil {
			log.Fatal("failed to seed mock data", zap.Error(err))
		}
		dataStore, resolver = mem, memResolver
		log.Info("serving demo tenants from memory")
	default:
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		if cfg.Migrate {
			if err := database.Migrate(ctx, db); err != nil {
				log.Fatal("failed to migrate database", zap.Error(err))
			}
		}
		pg := query.NewPostgresStore(db, log)
		// Dev bootstrap: demo tenants and their data in the real database.
		if cfg.SeedDemo {
			for _, t := range demo.Tenants() {
				if err := database.UpsertTenant(ctx, db, t); err != nil {
					log.Fatal("failed to seed tenant", zap.Error(err))
				}
				if err := demo.SeedTenant(ctx, pg, t, log); err != nil {
					log.Warn("demo data not seeded", zap.String("tenant", t.Subdomain), zap.Error(err))
				}
			}
		}
		dataStore, resolver = pg, tenant.NewPostgresResolver(db)
	}

	var (
		redisClient *redis.Client
		publisher   events.Publisher = events.NopPublisher{}
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, tenant cache and events will fail open", zap.Error(err))
		}
		resolver = tenant.NewCachedResolver(resolver, store.NewRedisKV(redisClient), cfg.Tenant.CacheTTL, log)
		if cfg.Events.Enabled {
			publisher = events.NewStreamPublisher(redisClient, cfg.Events.Stream, cfg.Events.MaxLen, log)
		}
	}

	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = events.NewMQTTClient(events.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Fatal("failed to connect to MQTT broker", zap.Error(err))
		}
		mirror := events.NewMQTTPublisher(mqttClient, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, log)
		if _, nop := publisher.(events.NopPublisher); nop {
			publisher = mirror
		} else {
			publisher = events.Fanout{publisher, mirror}
		}
	}

	sessions := httpapi.NewSessions(dataStore, guard.New(dataStore, log), resolver, publisher, cfg.Tenant.BaseDomain, cfg.Tenant.CacheTTL, log)
	marketplace := deploy.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.APIKey, cfg.Marketplace.Timeout, log)

	router := httpapi.NewRouter(log)
	router.RegisterPortalRoutes(httpapi.NewPortalHandler(sessions, marketplace, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
