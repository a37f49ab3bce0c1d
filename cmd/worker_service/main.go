package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irlmbm/companion-backend/internal/broker"
	"github.com/irlmbm/companion-backend/internal/companion_service/consumer"
	"github.com/irlmbm/companion-backend/internal/companion_service/service"
	"github.com/irlmbm/companion-backend/internal/companion_service/store"
	"github.com/irlmbm/companion-backend/internal/config"
	"github.com/irlmbm/companion-backend/internal/database/kafka"
	"github.com/irlmbm/companion-backend/internal/database/minio"
	"github.com/irlmbm/companion-backend/internal/database/mongo"
	"github.com/irlmbm/companion-backend/internal/database/redis"
	"github.com/irlmbm/companion-backend/internal/llm"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/internal/notify"
	"github.com/irlmbm/companion-backend/pkg/circuitbreaker"
	"github.com/irlmbm/companion-backend/pkg/logger"

	kafkago "github.com/segmentio/kafka-go"
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
	serviceLogger := logger.New("CompanionWorker", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to MongoDB using the singleton GetClient
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
	}
	db := mongoClient.Database(cfg.Databases.MongoDB.Database)

	// Connect to Redis and MinIO
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
	}
	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MinIO")
	}
	if err := minio.EnsureBucket(ctx, minioClient, cfg.Databases.MinIO.Bucket); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to ensure MinIO bucket")
	}

	// Make sure the tasks topic exists before consuming.
	if err := kafka.EnsureTopic(&cfg.Databases.Kafka); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to ensure Kafka topic")
	}

	// Stores
	userStore := store.NewMongoUserStore(db)
	messageStore := store.NewMongoMessageStore(db)
	uploadJobStore := store.NewMongoUploadJobStore(db, "upload_jobs")
	audioStore := store.NewMinioAudioStore(minioClient, cfg.Databases.MinIO.Bucket, cfg.Databases.MinIO.PublicURL)

	// LLM client, optionally wrapped with a circuit breaker
	model, err := llm.NewClient(ctx, cfg.LLM, service.SystemPrompt)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to create LLM client")
	}
	if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
		timeout, err := time.ParseDuration(cb.Timeout)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid circuit breaker timeout")
		}
		model = llm.WithBreaker(model, circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout))
	}

	// Publisher for follow-up tasks scheduled by executors
	taskPublisher := broker.NewKafkaPublisher(kafka.NewWriter(&cfg.Databases.Kafka), serviceLogger)

	// Executors and the task coordinator
	notifier := notify.NewRedisNotifier(redisClient, cfg.Worker.StatusTTL(), serviceLogger)
	history := service.NewHistoryBuilder(messageStore, cfg.Worker.HistoryWindowLimit)
	retry := service.NewController(cfg.Worker.MaxRetries, cfg.Worker.RetryBase(), serviceLogger)

	coordinator := service.NewCoordinator(retry, notifier, notifier, serviceLogger)
	coordinator.Register(models.TaskKindChatTurn,
		service.NewChatExecutor(userStore, messageStore, history, model, serviceLogger))
	coordinator.Register(models.TaskKindAudioUpload,
		service.NewUploadExecutor(uploadJobStore, audioStore, taskPublisher, cfg.Worker.RetentionMaxAgeDays, serviceLogger))
	coordinator.Register(models.TaskKindRetentionSweep,
		service.NewSweeper(audioStore, cfg.Worker.RetentionMaxAgeDays, serviceLogger))

	// Every task must finish within the visibility window once claimed;
	// past it the context expires and the outcome is a failure record.
	handler := func(ctx context.Context, msg kafkago.Message) error {
		taskCtx, taskCancel := context.WithTimeout(ctx, cfg.Worker.VisibilityTimeout())
		defer taskCancel()
		return coordinator.ProcessTask(taskCtx, msg)
	}

	// Start consuming. Each worker goroutine owns a reader and commits an
	// offset only after the task reached a terminal outcome.
	taskConsumer := consumer.NewTaskConsumer(func() *kafkago.Reader {
		return kafka.NewReader(&cfg.Databases.Kafka)
	}, cfg.Worker.Concurrency, handler, serviceLogger)
	taskConsumer.Start(ctx)
	serviceLogger.Info("Task consumer started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down worker...")

	cancel()
	if err := taskConsumer.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka consumer")
	}
	if err := taskPublisher.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka publisher")
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from Redis")
	}

	serviceLogger.Info("Worker gracefully stopped")
}
