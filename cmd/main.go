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

	"bulk-upload-service/internal/cache"
	"bulk-upload-service/internal/config"
	"bulk-upload-service/internal/events"
	"bulk-upload-service/internal/handlers"
	"bulk-upload-service/internal/jobs"
	"bulk-upload-service/internal/metrics"
	"bulk-upload-service/internal/middleware"
	"bulk-upload-service/internal/repository"
	"bulk-upload-service/internal/seeders"
	"bulk-upload-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Bulk Upload API
// @version 1.0.0
// @description Spreadsheet-based bulk product upload for marketplace sellers: staging, review, correction export and commit
// @termsOfService http://swagger.io/terms/

// @contact.name Bulk Upload API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8095
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize repositories
	uploadRepo := repository.NewBulkUploadRepository(db)
	specRuleRepo := repository.NewSpecRuleRepository(db)

	// Seed built-in spec rules
	if cfg.SeedSpecRules {
		seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := seeders.SeedDefaultSpecRules(seedCtx, specRuleRepo, logger); err != nil {
			log.Printf("WARNING: Failed to seed spec rules: %v (built-in defaults still apply)", err)
		} else {
			log.Println("✓ Default spec rules seeded")
		}
		cancel()
	}

	// Initialize Redis for SKU sequences (nil client falls back to the database counter)
	redisClient := cache.Connect(cfg.RedisURL, logger)
	if redisClient != nil {
		log.Println("✓ Redis connected successfully")
		defer redisClient.Close()
	}
	skuSequence := cache.NewSKUSequence(redisClient, uploadRepo, logger)

	// Initialize event publisher only if NATS_URL is set
	var notifier services.CommitNotifier
	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
			notifier = publisher
			defer publisher.Close()
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}

	// Initialize pipeline services
	ruleBook := services.NewSpecRuleBook(specRuleRepo, cfg.SpecRuleCacheTTL, logger)
	specValidator := services.NewSpecValidator(ruleBook, logger)
	matcher := services.NewProductMatcher(uploadRepo, cfg.FuzzyMatchThreshold, logger)
	skuGenerator := services.NewSKUGenerator(skuSequence, uploadRepo, cfg.MaxSKUAttempts)

	stagingService := services.NewStagingService(uploadRepo, matcher, specValidator, services.StagingLimits{
		MaxStagingBatches: cfg.MaxStagingBatches,
		MaxRowsPerUpload:  cfg.MaxRowsPerUpload,
	}, logger)
	commitService := services.NewCommitService(uploadRepo, skuGenerator, notifier, logger)

	// Initialize handlers
	uploadHandler := handlers.NewBulkUploadHandler(stagingService, commitService, ruleBook, handlers.UploadLimits{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}, logger)
	healthHandler := handlers.NewHealthHandler(db, redisClient)

	// Start retention job
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	retentionJob := jobs.NewRetentionJob(uploadRepo, cfg.RetentionPeriod(), cfg.RetentionInterval, logger)
	go retentionJob.Start(jobCtx)
	log.Printf("✓ Retention job started (keeping finished uploads for %d days)", cfg.RetentionDays)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/metrics", metrics.Handler())

	// Seller-scoped API routes
	api := router.Group("/api/v1")
	api.Use(middleware.SellerMiddleware())
	api.Use(middleware.SellerRateLimit(cfg.SellerRateLimit))
	uploadHandler.RegisterRoutes(api)

	// Catalog admin routes
	admin := router.Group("/api/v1/admin/bulk-uploads")
	admin.Use(middleware.RequireRole("catalog_admin"))
	uploadHandler.RegisterAdminRoutes(admin)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Bulk upload service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down bulk-upload-service...")

	retentionJob.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Bulk upload service stopped")
}
