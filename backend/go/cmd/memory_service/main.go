package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memory_orchestrator/backend/go/internal/config"
	"memory_orchestrator/backend/go/internal/database/gormdb"
	"memory_orchestrator/backend/go/internal/database/kafka"
	mongodb "memory_orchestrator/backend/go/internal/database/mongo"
	redisdb "memory_orchestrator/backend/go/internal/database/redis"
	"memory_orchestrator/backend/go/internal/llm"
	"memory_orchestrator/backend/go/internal/memory/consumer"
	"memory_orchestrator/backend/go/internal/memory/extractor"
	"memory_orchestrator/backend/go/internal/memory/service"
	"memory_orchestrator/backend/go/internal/memory/store/episodic"
	"memory_orchestrator/backend/go/internal/memory/store/semantic"
	"memory_orchestrator/backend/go/internal/memory/store/working"
	"memory_orchestrator/backend/go/internal/memory/summarizer"
	"memory_orchestrator/backend/go/internal/memory/worker"
	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"
)

const maxLocalSessions = 10000

func main() {
	// Load configuration
	path := os.Getenv("MEMORY_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("memory_service", "", "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				appLogger.WithError(models.NewErrorInfo(err)).Warn("failed to close client")
			}
		}
	}()

	memoryService, err := buildService(ctx, cfg, appLogger, &closers)
	if err != nil {
		appLogger.WithError(models.NewErrorInfo(err)).Fatal("failed to build memory service")
	}

	// Initialize and start Kafka consumer
	kafkaClient, err := kafka.NewClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.WithError(models.NewErrorInfo(err)).Fatal("failed to connect to kafka")
	}
	closers = append(closers, kafkaClient)
	controller, err := kafkaClient.GetControllerInfo()
	if err != nil {
		appLogger.WithError(models.NewErrorInfo(err)).Fatal("kafka controller unreachable")
	}
	kafkaConsumer := consumer.NewKafkaConsumer(kafkaClient.Reader, memoryService, appLogger)

	appLogger.WithPayload(map[string]interface{}{
		"topic":            cfg.Databases.Kafka.TurnTopic,
		"kafka_controller": controller,
		"episodic_backend": cfg.Memory.EpisodicBackend,
	}).Info("Memory service started")

	if err := kafkaConsumer.Run(ctx); err != nil {
		appLogger.WithError(models.NewErrorInfo(err)).Error("consumer stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := memoryService.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(models.NewErrorInfo(err)).Warn("background tasks did not drain")
	}
	stats := memoryService.GetStats()
	appLogger.WithPayload(map[string]interface{}{"stats": stats}).Info("Memory service stopped")
}

// buildService constructs every client and store explicitly. Clients that need
// closing are appended to closers.
func buildService(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger, closers *[]io.Closer) (*service.MemoryService, error) {
	mem := cfg.Memory
	dbs := cfg.Databases

	// Working memory and turn counter: Redis when configured, in-process otherwise.
	var (
		wm      service.WorkingMemory
		counter episodic.TurnCounter
	)
	if dbs.Redis.Address != "" {
		client, err := redisdb.NewClient(ctx, &dbs.Redis)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, client)
		wm = working.NewRedisStore(client, dbs.Redis.KeyPrefix, mem.MaxWorkingMessages, mem.WorkingTTLDuration())
		counter = episodic.NewRedisTurnCounter(client, dbs.Redis.KeyPrefix, mem.WorkingTTLDuration())
	} else {
		appLogger.Warn("redis not configured, working memory is process-local")
		local, err := working.NewLocalStore(maxLocalSessions, mem.MaxWorkingMessages, mem.WorkingTTLDuration())
		if err != nil {
			return nil, err
		}
		wm = local
		if counter, err = episodic.NewLocalTurnCounter(maxLocalSessions, mem.WorkingTTLDuration()); err != nil {
			return nil, err
		}
	}

	// Relational store for facts, and for summaries unless Mongo is selected.
	db, err := gormdb.Open(&dbs.SQL)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, closerFunc(func() error { return gormdb.Close(db) }))
	if err := gormdb.HealthCheck(ctx, db); err != nil {
		return nil, err
	}

	var repo episodic.Repository
	switch mem.EpisodicBackend {
	case "mongo":
		client, err := mongodb.NewClient(ctx, &dbs.MongoDB)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error { return client.Disconnect(context.Background()) }))
		mongoRepo := episodic.NewMongoRepository(mongodb.Collection(client, &dbs.MongoDB))
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		repo = mongoRepo
	default:
		if repo, err = episodic.NewGormRepository(db); err != nil {
			return nil, err
		}
	}
	episodicStore := episodic.NewStore(repo, counter, mem.SummarizeThreshold, mem.SummaryMaxLength)

	semanticStore, err := semantic.NewStore(db, mem.RetrievalConfidenceFloor)
	if err != nil {
		return nil, err
	}

	// Text generation, shared by the summarizer and the extractor.
	rawGen, err := llm.NewGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if c, ok := rawGen.(io.Closer); ok {
		*closers = append(*closers, c)
	}
	gen := llm.NewGuardFromConfig(rawGen, mem, cfg.Middleware)

	var publisher service.EventPublisher
	if len(dbs.Kafka.Brokers) > 0 && dbs.Kafka.EventTopic != "" {
		p := kafka.NewEventPublisher(dbs.Kafka.Brokers, dbs.Kafka.EventTopic, appLogger.WithField("component", "event_publisher"))
		*closers = append(*closers, p)
		publisher = p
	}

	svc, err := service.NewMemoryService(service.Deps{
		Working:    wm,
		Episodic:   episodicStore,
		Semantic:   semanticStore,
		Summarizer: summarizer.New(gen, mem.SummaryMaxLength, mem.SummaryMaxTokens),
		Extractor:  extractor.NewLlmExtractor(gen, mem.ExtractionConfidenceFloor, mem.MaxFactsPerExtraction, mem.ExtractionMaxTokens),
		Pool:       worker.New(mem.Workers, mem.QueueSize, appLogger.WithField("component", "worker")),
		Publisher:  publisher,
		Logger:     appLogger,
	}, mem)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
