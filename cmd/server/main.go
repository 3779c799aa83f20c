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
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/api/handlers"
	"github.com/gridironlabs/ffpipeline/internal/config"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/providers"
	"github.com/gridironlabs/ffpipeline/internal/services"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/database"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("", cfg.IsDevelopment())
	logger.WithService("ffpipeline").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting pipeline service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPipelineConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.WithService("ffpipeline").Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(
		&models.Player{},
		&models.ScheduleEntry{},
		&models.DefenseVsPos{},
		&models.OddsLine{},
		&models.League{},
		&models.LeagueUser{},
		&models.LeagueRoster{},
		&models.Matchup{},
		&models.LeagueTransaction{},
		&models.Prediction{},
		&models.ModelRecord{},
		&models.ProductionPointer{},
		&models.ModelRun{},
	); err != nil {
		logger.WithService("ffpipeline").Fatalf("Failed to migrate schema: %v", err)
	}

	// Redis is optional; without it the prediction write-through cache is off
	var redisClient *redis.Client
	var cacheService *services.CacheService
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithService("ffpipeline").Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithService("ffpipeline").WithError(err).Warn("Redis unreachable, running without prediction cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			cacheService = services.NewCacheService(redisClient)
		}
	}

	blob, err := storage.NewFileBlobStore(cfg.BlobDir)
	if err != nil {
		logger.WithService("ffpipeline").Fatalf("Failed to open blob store: %v", err)
	}

	httpClient := &http.Client{Timeout: cfg.ExternalAPITimeout}
	statsClient := providers.NewNFLStatsClient(cfg.NFLStatsBaseURL, httpClient, structuredLogger)
	sleeperClient := providers.NewSleeperClient(cfg.SleeperBaseURL, httpClient, structuredLogger)
	breakers := services.NewCircuitBreakerService(cfg.CircuitBreakerThreshold, cfg.ExternalAPITimeout, structuredLogger)

	dims := services.NewDimStore(db.DB, cfg.UpsertChunkSize)
	registry := services.NewGormRegistry(db.DB)
	predStore := services.NewGormPredictionStore(db.DB, cfg.UpsertChunkSize)
	runStore := services.NewGormRunStore(db.DB)

	ingestService := services.NewIngestService(statsClient, blob, dims, breakers, cacheService, structuredLogger)
	leagueService := services.NewLeagueSyncService(sleeperClient, blob, dims, breakers, structuredLogger)
	featureService := services.NewFeatureService(blob, dims, structuredLogger)
	trainerService := services.NewTrainerService(blob, registry, structuredLogger, cfg.Alpha, cfg.CVFolds)
	inferenceService := services.NewInferenceService(blob, registry, predStore, cacheService, structuredLogger, cfg.PredictionTTL)
	validationService := services.NewValidationService(blob, predStore, runStore, registry, structuredLogger, cfg.TargetCoverage, cfg.CoverageTolerance)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	stageHandler := handlers.NewStageHandler(
		ingestService,
		leagueService,
		featureService,
		trainerService,
		inferenceService,
		validationService,
		registry,
		predStore,
		structuredLogger,
		cfg.DefaultLearner,
	)
	healthHandler := handlers.NewHealthHandler(db, redisClient, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		stages := apiV1.Group("/stages")
		{
			stages.POST("/backfill", stageHandler.Backfill)
			stages.POST("/ingest", stageHandler.Ingest)
			stages.POST("/dvp", stageHandler.BuildDefenseVsPos)
			stages.POST("/odds", stageHandler.IngestOdds)
			stages.POST("/sync-players", stageHandler.SyncPlayers)
			stages.POST("/sync-league", stageHandler.SyncLeague)
			stages.POST("/sync-league-week", stageHandler.SyncLeagueWeek)
			stages.POST("/features", stageHandler.BuildFeatures)
			stages.POST("/train", stageHandler.Train)
			stages.POST("/infer", stageHandler.Infer)
			stages.POST("/validate", stageHandler.Validate)
		}

		apiV1.GET("/predictions", stageHandler.GetPredictions)
		apiV1.GET("/models/production", stageHandler.GetProductionModel)
		apiV1.GET("/models/latest", stageHandler.GetLatestModel)
	}

	router.GET("/health", healthHandler.GetHealth)
	router.HEAD("/health", healthHandler.GetHealth)

	var scheduler *cron.Cron
	if cfg.EnableBackgroundJobs {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.WeeklyCronSpec, func() {
			runWeeklyPipeline(cfg, ingestService, leagueService, featureService, inferenceService, validationService)
		})
		if err != nil {
			logger.WithService("ffpipeline").Fatalf("Invalid cron spec %q: %v", cfg.WeeklyCronSpec, err)
		}
		scheduler.Start()
		logger.WithService("ffpipeline").WithField("spec", cfg.WeeklyCronSpec).Info("Weekly pipeline job scheduled")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService("ffpipeline").WithField("port", cfg.Port).Info("Pipeline service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService("ffpipeline").Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService("ffpipeline").Info("Shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithService("ffpipeline").Fatalf("Forced shutdown: %v", err)
	}
	logger.WithService("ffpipeline").Info("Shutdown complete")
}

// runWeeklyPipeline is the scheduled refresh: ingest the current season, then
// rebuild, score and validate the current week. Week math uses the most recent
// completed week; failures are logged and the rest of the chain still runs
// where it can.
func runWeeklyPipeline(
	cfg *config.Config,
	ingest *services.IngestService,
	league *services.LeagueSyncService,
	features *services.FeatureService,
	inference *services.InferenceService,
	validation *services.ValidationService,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	season, week := currentSeasonWeek(time.Now().UTC())
	log := logger.WithStageWeek("weekly_job", season, week)

	if _, err := ingest.Backfill(ctx, season, season); err != nil {
		log.WithError(err).Error("Weekly ingest failed")
		return
	}
	if _, err := ingest.BuildDefenseVsPos(season, week); err != nil {
		log.WithError(err).Error("Weekly defense-vs-pos build failed")
	}
	if cfg.LeagueID != "" {
		if _, err := league.SyncLeagueWeek(ctx, cfg.LeagueID, season, week); err != nil {
			log.WithError(err).Error("Weekly league sync failed")
		}
	}
	if _, err := features.BuildFeatures(season, week); err != nil {
		log.WithError(err).Error("Weekly feature build failed")
		return
	}
	if _, err := inference.InferBatch(ctx, season, week); err != nil {
		log.WithError(err).Error("Weekly inference failed")
		return
	}
	if week > 1 {
		if _, err := validation.ValidatePromote(season, week-1); err != nil {
			log.WithError(err).Error("Weekly validation failed")
		}
	}
	log.Info("Weekly pipeline complete")
}

// currentSeasonWeek approximates the NFL calendar: seasons start the first
// week of September and run 18 weeks; January and February belong to the
// prior season's tail.
func currentSeasonWeek(now time.Time) (int, int) {
	season := now.Year()
	if now.Month() < time.September {
		season--
	}
	kickoff := time.Date(season, time.September, 1, 0, 0, 0, 0, time.UTC)
	week := int(now.Sub(kickoff).Hours()/(24*7)) + 1
	if week < 1 {
		week = 1
	}
	if week > 18 {
		week = 18
	}
	return season, week
}
