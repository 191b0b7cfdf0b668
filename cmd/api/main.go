package main

import (
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

	"github.com/synthlab/backend/internal/api/handlers"
	redisCache "github.com/synthlab/backend/internal/cache/redis"
	"github.com/synthlab/backend/internal/counterfactual"
	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/metrics"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/sqlite"
	"github.com/synthlab/backend/internal/synthesis"
	"github.com/synthlab/backend/pkg/config"
	appLogger "github.com/synthlab/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Response Synthesis API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path, cfg.Storage.BulkThresholdBytes)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err = sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var scoreCache reward.ScoreCache
	if cfg.Redis.Enabled {
		cache, err := redisCache.NewClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, judge scores will not be cached", zap.Error(err))
		} else {
			defer cache.Close()
			scoreCache = cache
		}
	}

	llmClient := llm.NewClient(cfg.LLM)

	scorer, err := reward.NewScorer(llmClient, cfg.Reward, scoreCache)
	if err != nil {
		appLogger.Fatal("Failed to create reward scorer", zap.Error(err))
	}

	engine := synthesis.NewEngine(llmClient, scorer, sqliteClient, cfg.Synthesis)

	sampler := counterfactual.NewSampler(cfg.Counterfactual)
	simulator := counterfactual.NewSimulator(llmClient, scorer, sqliteClient, sampler, cfg.Counterfactual)

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

	synthesisHandler := handlers.NewSynthesisHandler(engine, simulator, sqliteClient)
	counterfactualHandler := handlers.NewCounterfactualHandler(simulator, sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/synthesize", synthesisHandler.HandleSynthesize)
	api.Get("/interactions", synthesisHandler.GetInteractions)

	api.Post("/counterfactuals/simulate", counterfactualHandler.HandleSimulate)
	api.Get("/counterfactuals/stats", counterfactualHandler.GetStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
