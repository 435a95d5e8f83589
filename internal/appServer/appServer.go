package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/shortlink/config"
	repository "github.com/ds124wfegd/shortlink/internal/database/postgres"
	cache "github.com/ds124wfegd/shortlink/internal/database/redis"
	"github.com/ds124wfegd/shortlink/internal/pkg/enrichment"
	"github.com/ds124wfegd/shortlink/internal/pkg/kafka"
	"github.com/ds124wfegd/shortlink/internal/pkg/security"
	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/ds124wfegd/shortlink/internal/transport"

	"github.com/ds124wfegd/shortlink/pkg/postgres"
	"github.com/ds124wfegd/shortlink/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	ctx := context.Background()

	location, err := cfg.App.Location()
	if err != nil {
		logrus.Fatalf("Invalid timezone: %v", err)
	}

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)
	ipRepo := repository.NewIPRepository(db)
	userRepo := repository.NewUserRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	var cacheRepo repository.CacheRepository = cache.NoopCache{}
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to Redis: %v. Continuing without cache...", err)
		} else {
			defer redisClient.Close()
			cacheRepo = cache.NewCacheRepository(redisClient, cfg.Redis.LinkTTL, cfg.Redis.IPTTL)
			logrus.Info("Redis cache initialized")
		}
	}

	var provider enrichment.Provider
	switch cfg.Enrichment.Provider {
	case "geoip":
		geo, err := enrichment.OpenGeoIP(cfg.Enrichment.GeoIPPath)
		if err != nil {
			logrus.Fatalf("Failed to open GeoIP database: %v", err)
		}
		defer geo.Close()
		provider = geo
	default:
		if cfg.Enrichment.APIKey == "" {
			logrus.Warn("enrichment api key not provided, proxycheck rate limits apply")
		}
		provider = enrichment.NewProxyCheck(cfg.Enrichment.BaseURL, cfg.Enrichment.APIKey, cfg.Enrichment.Timeout)
	}

	var producer kafka.Producer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer producer.Close()

	// Initialize services
	hasher := security.NewPasswordHasher(cfg.Auth.BcryptCost)

	clickService := service.NewClickService(clickRepo, producer)
	dispatcher := service.NewClickDispatcher(clickService, cfg.Clicks.BufferSize, cfg.Clicks.Workers, cfg.Clicks.WriteTimeout)
	ipService := service.NewIPService(ipRepo, cacheRepo, provider, cfg.Enrichment.Timeout)

	redirectService := service.NewRedirectService(linkRepo, cacheRepo, ipService, dispatcher, hasher, time.Now, location)
	linkService := service.NewLinkService(linkRepo, cacheRepo, hasher, time.Now, &service.LinkServiceConfig{
		BaseURL:         cfg.App.BaseURL,
		ShortCodeLength: cfg.App.ShortCodeLength,
		MaxLifetime:     cfg.App.MaxLinkLifetime,
	})
	statisticService := service.NewStatisticService(linkRepo, clickRepo, time.Now)
	userService := service.NewUserService(userRepo, hasher)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, userService, time.Now, cfg.Auth.APIKeyTTL)

	// Initialize handlers
	authHandler := transport.NewAuthHandler(userService, apiKeyService)
	urlHandler := transport.NewURLHandler(linkService)
	statsHandler := transport.NewStatsHandler(statisticService)
	redirectHandler := transport.NewRedirectHandler(redirectService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(authHandler, urlHandler, statsHandler, redirectHandler, apiKeyService, cfg.Server.RequestTimeout)
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logrus.Fatalf("Invalid trusted proxies: %v", err)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	// Pending clicks are flushed before the stores below are closed by defers.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logrus.Errorf("click queue not drained: %s", err.Error())
	}
}
