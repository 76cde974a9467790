package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FUZZY_MATCH_THRESHOLD", "")
	t.Setenv("MAX_STAGING_BATCHES", "")
	t.Setenv("NATS_URL", "")

	cfg := Load()

	assert.Equal(t, 0.8, cfg.FuzzyMatchThreshold)
	assert.Equal(t, 3, cfg.MaxStagingBatches)
	assert.Equal(t, 1000, cfg.MaxRowsPerUpload)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 120, cfg.SellerRateLimit)
	assert.Equal(t, 10*time.Minute, cfg.SpecRuleCacheTTL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionPeriod())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FUZZY_MATCH_THRESHOLD", "0.7")
	t.Setenv("MAX_STAGING_BATCHES", "5")
	t.Setenv("SPEC_RULE_CACHE_TTL", "90s")
	t.Setenv("RETENTION_DAYS", "7")

	cfg := Load()

	assert.Equal(t, 0.7, cfg.FuzzyMatchThreshold)
	assert.Equal(t, 5, cfg.MaxStagingBatches)
	assert.Equal(t, 90*time.Second, cfg.SpecRuleCacheTTL)
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestLoad_InvalidThresholdFallsBack(t *testing.T) {
	t.Setenv("FUZZY_MATCH_THRESHOLD", "1.5")

	cfg := Load()

	assert.Equal(t, 0.8, cfg.FuzzyMatchThreshold)
}
