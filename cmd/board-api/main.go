// Command board-api serves board sessions over HTTP and streams their
// changes to the UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"hackboard/api"
	"hackboard/backend"
	"hackboard/config"
	"hackboard/storage"
	"hackboard/stream"
)

func main() {
	cfg, err := config.Load(os.Getenv("HACKBOARD_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateService(); err != nil {
		log.Fatal(err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)

	var store *storage.Storage
	if cfg.Storage.ConnectionString != "" {
		store, err = storage.New(cfg.Storage.ConnectionString, cfg.Storage.TasksTable, cfg.Storage.MembersTable, cfg.Storage.EventsQueue)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
	}

	deps := api.Deps{
		Logger:  logger,
		Guard:   storage.NewGenerationGuard(rc, cfg.Redis.GenerationTTL),
		Publish: api.PublishOptions(cfg.Publish),
		Health: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		},
	}
	if cfg.Backend.URL != "" {
		client := backend.New(cfg.Backend.URL, cfg.Backend.Token)
		client.Logger = logger
		deps.Source = storage.NewCache(client, rc, cfg.Redis.CacheTTL)
		deps.Generator = client
	} else {
		deps.Source = storage.NewCache(store, rc, cfg.Redis.CacheTTL)
	}
	if store != nil && cfg.Storage.EventsQueue != "" {
		deps.Events = store
	}

	if cfg.Auth.TestMode {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			log.Fatal("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		deps.Auth = api.NewTestAuth([]byte(secret))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth.Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		deps.Auth = api.NewAuth(jwks, cfg.Auth.Audience, "https://"+cfg.Auth.Domain+"/")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps.Relay = stream.NewRelay(stream.NewHub(0), rc, cfg.Redis.Channel, logger)
	go deps.Relay.Run(ctx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	svc := api.Register(e, deps)

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	svc.Close()
	_ = rc.Close()
}
