package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irlmbm/companion-backend/internal/broker"
	"github.com/irlmbm/companion-backend/internal/config"
	"github.com/irlmbm/companion-backend/internal/database/kafka"
	"github.com/irlmbm/companion-backend/internal/database/redis"
	"github.com/irlmbm/companion-backend/internal/gateway_service/api"
	"github.com/irlmbm/companion-backend/internal/gateway_service/service"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/internal/notify"
	"github.com/irlmbm/companion-backend/pkg/logger"
	"github.com/irlmbm/companion-backend/pkg/ratelimiter"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	// Create a single base logger for the service
	serviceLogger := logger.New("GatewayService", "", "")

	// Connect to Redis using the singleton GetClient
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
	}

	// Make sure the tasks topic exists before the first publish.
	if err := kafka.EnsureTopic(&cfg.Databases.Kafka); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to ensure Kafka topic")
	}

	// Create components with logger injection
	notifier := notify.NewRedisNotifier(redisClient, cfg.Worker.StatusTTL(), serviceLogger)
	taskPublisher := broker.NewKafkaPublisher(kafka.NewWriter(&cfg.Databases.Kafka), serviceLogger)
	connManager := service.NewConnectionManager()
	taskService := service.NewTaskService(taskPublisher, notifier, notifier, serviceLogger)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(taskService, connManager, serviceLogger, cfg.Gateway.WaitTimeoutSeconds)

	var limiter ratelimiter.RateLimiter
	if cfg.Middleware.RateLimiter.Enabled {
		limiter = ratelimiter.NewTokenBucket(cfg.Middleware.RateLimiter.Rate, cfg.Middleware.RateLimiter.Capacity)
	}
	api.RegisterRoutes(router, apiHandler, limiter)

	srv := &http.Server{
		Addr:    cfg.Gateway.ServerAddress,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Server forced to shutdown")
	}

	if err := taskPublisher.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka publisher")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from Redis")
	}

	serviceLogger.Info("Server gracefully stopped")
}
