package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"bulk-upload-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Server
	Port           string
	Environment    string
	MaxUploadBytes int64

	// Requests per minute per seller, 0 disables
	SellerRateLimit int

	// Pagination
	DefaultPageSize int
	MaxPageSize     int

	// Pipeline settings
	FuzzyMatchThreshold float64
	MaxStagingBatches   int
	MaxRowsPerUpload    int
	MaxSKUAttempts      int
	SpecRuleCacheTTL    time.Duration
	SeedSpecRules       bool

	// Retention
	RetentionDays     int
	RetentionInterval time.Duration
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))
	maxUploadBytes, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	sellerRateLimit, _ := strconv.Atoi(getEnv("SELLER_RATE_LIMIT", "120"))
	threshold, err := strconv.ParseFloat(getEnv("FUZZY_MATCH_THRESHOLD", "0.8"), 64)
	if err != nil || threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	maxStagingBatches, _ := strconv.Atoi(getEnv("MAX_STAGING_BATCHES", "3"))
	maxRowsPerUpload, _ := strconv.Atoi(getEnv("MAX_ROWS_PER_UPLOAD", "1000"))
	maxSKUAttempts, _ := strconv.Atoi(getEnv("MAX_SKU_ATTEMPTS", "50"))
	specRuleCacheTTL := getDuration("SPEC_RULE_CACHE_TTL", 10*time.Minute)
	seedSpecRules, _ := strconv.ParseBool(getEnv("SEED_SPEC_RULES", "true"))
	retentionDays, _ := strconv.Atoi(getEnv("RETENTION_DAYS", "30"))
	retentionInterval := getDuration("RETENTION_INTERVAL", 6*time.Hour)

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "bulk_upload_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// NATS - empty disables commit notifications
		NATSURL: os.Getenv("NATS_URL"),

		// Server
		Port:            getEnv("PORT", "8095"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		MaxUploadBytes:  maxUploadBytes,
		SellerRateLimit: sellerRateLimit,

		// Pagination
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,

		// Pipeline settings
		FuzzyMatchThreshold: threshold,
		MaxStagingBatches:   maxStagingBatches,
		MaxRowsPerUpload:    maxRowsPerUpload,
		MaxSKUAttempts:      maxSKUAttempts,
		SpecRuleCacheTTL:    specRuleCacheTTL,
		SeedSpecRules:       seedSpecRules,

		// Retention
		RetentionDays:     retentionDays,
		RetentionInterval: retentionInterval,
	}
}

// RetentionPeriod returns how long finished batches are kept
func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// pg_trgm backs the fuzzy matcher; without it matching falls back to local trigrams
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		log.Printf("Note: pg_trgm extension unavailable (fuzzy matching will run locally): %v", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(models.All()...); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
