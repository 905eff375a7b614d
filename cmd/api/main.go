package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/api/handlers"
	"github.com/tcredex/knowledge-api/internal/cache/redis"
	"github.com/tcredex/knowledge-api/internal/embedding"
	"github.com/tcredex/knowledge-api/internal/extract"
	"github.com/tcredex/knowledge-api/internal/ingestion"
	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/internal/metrics"
	"github.com/tcredex/knowledge-api/internal/middleware/security"
	"github.com/tcredex/knowledge-api/internal/retriever"
	"github.com/tcredex/knowledge-api/internal/storage/sqlite"
	"github.com/tcredex/knowledge-api/internal/vector/milvus"
	"github.com/tcredex/knowledge-api/pkg/config"
	"github.com/tcredex/knowledge-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting knowledge API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path, log)
	if err != nil {
		log.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		context.Background(),
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
		log,
	)
	if err != nil {
		log.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		log.Fatal("Failed to ensure collection", zap.Error(err))
	}

	embedder, err := embedding.New(cfg.Embedding, log)
	if err != nil {
		log.Fatal("Failed to create embedding client", zap.Error(err))
	}

	var cache knowledge.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
			log,
		)
		if err != nil {
			log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		cache = redisClient
	}

	store := knowledge.NewStore(sqliteClient, milvusClient, embedder, cache, log)
	extractor := extract.NewRegistry()
	pipeline := ingestion.NewPipeline(store, extractor, embedder, cfg.Embedding.BatchSize, log)
	ragRetriever := retriever.New(store, log)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	knowledgeHandler := handlers.NewKnowledgeHandler(pipeline, store, extractor, log)
	searchHandler := handlers.NewSearchHandler(store, log)
	contextHandler := handlers.NewContextHandler(ragRetriever, log)

	api := app.Group("/api/v1")

	api.Post("/knowledge/ingest", knowledgeHandler.HandleIngest)
	api.Post("/knowledge/estimate", knowledgeHandler.HandleEstimate)
	api.Get("/knowledge/documents", knowledgeHandler.HandleListDocuments)
	api.Get("/knowledge/documents/:id", knowledgeHandler.HandleGetDocument)
	api.Put("/knowledge/documents/:id", knowledgeHandler.HandleReingest)
	api.Delete("/knowledge/documents/:id", knowledgeHandler.HandleDeleteDocument)
	api.Post("/knowledge/search", searchHandler.HandleSearch)
	api.Post("/knowledge/context", contextHandler.HandleContext)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down gracefully...")
	app.Shutdown()
	log.Info("Server stopped")
}
