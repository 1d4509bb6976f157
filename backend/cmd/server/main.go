package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"currents/backend/internal/fanout"
	"currents/backend/internal/feed"
	"currents/backend/internal/graph"
	"currents/backend/internal/media"
	"currents/backend/internal/posts"
	"currents/backend/internal/telemetry"
	"currents/backend/pkg/config"
	"currents/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting social core server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify Neo4j connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Redis backs the approximate post counter; the server runs without it.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable, post counts fall back to the store", zap.Error(err))
			redisClient = nil
		}
		if redisClient != nil {
			defer redisClient.Close()
		}
	}

	// Initialize dependencies
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	mediaClient := media.NewClient(cfg.MediaServiceURL, metrics)

	graphRepo := graph.NewRepository(driver)
	postRepo := posts.NewRepository(driver, mediaClient)

	// Constraint creation is idempotent; run both in parallel at boot.
	g, schemaCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return graphRepo.EnsureSchema(schemaCtx) })
	g.Go(func() error { return postRepo.EnsureSchema(schemaCtx) })
	if err := g.Wait(); err != nil {
		log.Fatal("Failed to ensure store schema", zap.Error(err))
	}

	counter := posts.NewCounter(postRepo, redisClient, cfg.CountCacheTTL)
	assembler := feed.NewAssembler(graphRepo, postRepo)
	hub := fanout.NewHub(metrics)
	notifier := fanout.NewNotifier(hub, graphRepo)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(&server{
		graph:    graphRepo,
		posts:    postRepo,
		feed:     assembler,
		counter:  counter,
		notifier: notifier,
		hub:      hub,
		metrics:  metrics,
		logger:   log,
	}, cfg.ClientOrigin)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
