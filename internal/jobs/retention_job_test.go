package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"bulk-upload-service/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedBatch(t *testing.T, db *gorm.DB, status models.BatchStatus, createdAt time.Time, rows ...models.StagingRow) *models.UploadBatch {
	t.Helper()
	batch := &models.UploadBatch{
		SellerID:  "seller-1",
		ShopID:    "shop-1",
		FileName:  "products.csv",
		Status:    status,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(batch).Error)
	for i := range rows {
		rows[i].BatchID = batch.ID
		rows[i].RowNumber = i + 1
		require.NoError(t, db.Create(&rows[i]).Error)
	}
	return batch
}

func seedListing(t *testing.T, db *gorm.DB) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		BaseProductID:  uuid.New(),
		SellerID:       "seller-1",
		ShopID:         "shop-1",
		SKU:            "SHP2501010001",
		ProductName:    "Tecno Spark 20",
		NormalizedName: "tecno spark 20",
		BasePrice:      decimal.NewFromInt(95000),
		DisplayPrice:   decimal.NewFromInt(99997),
		StockQuantity:  3,
		Condition:      models.ConditionNew,
		Status:         models.ListingStatusNeedsImages,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func countRows(t *testing.T, db *gorm.DB, batchID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.StagingRow{}).Where("batch_id = ?", batchID).Count(&n).Error)
	return n
}

func batchExists(t *testing.T, db *gorm.DB, id uuid.UUID) bool {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.UploadBatch{}).Where("id = ?", id).Count(&n).Error)
	return n > 0
}

func TestRetentionJob_RunOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewBulkUploadRepository(db)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -45)
	recent := now.AddDate(0, 0, -2)

	listing := seedListing(t, db)
	goneListing := uuid.New()

	// Old completed batch: invalid rows go, the committed row whose listing survives stays
	kept := seedBatch(t, db, models.BatchStatusCompleted, old,
		models.StagingRow{Status: models.RowStatusInvalid},
		models.StagingRow{Status: models.RowStatusCommitted, ListingID: &listing.ID},
	)
	// Old cancelled batch whose committed listing no longer exists: fully removed
	cancelled := seedBatch(t, db, models.BatchStatusCancelled, old,
		models.StagingRow{Status: models.RowStatusSkipped},
		models.StagingRow{Status: models.RowStatusCommitted, ListingID: &goneListing},
	)
	// Old batch still staging: untouched
	staging := seedBatch(t, db, models.BatchStatusStaging, old,
		models.StagingRow{Status: models.RowStatusValid},
	)
	// Recent completed batch: untouched
	fresh := seedBatch(t, db, models.BatchStatusCompleted, recent,
		models.StagingRow{Status: models.RowStatusInvalid},
	)

	job := NewRetentionJob(repo, 30*24*time.Hour, time.Hour, quietLogger())
	job.now = func() time.Time { return now }

	result, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -30), result.Cutoff)
	assert.Equal(t, int64(3), result.RowsDeleted)
	assert.Equal(t, int64(1), result.BatchesDeleted)

	assert.Equal(t, int64(1), countRows(t, db, kept.ID))
	assert.True(t, batchExists(t, db, kept.ID))
	assert.False(t, batchExists(t, db, cancelled.ID))
	assert.Equal(t, int64(1), countRows(t, db, staging.ID))
	assert.Equal(t, int64(1), countRows(t, db, fresh.ID))

	// A second sweep finds nothing left to remove
	result, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.RowsDeleted)
	assert.Zero(t, result.BatchesDeleted)
}

type failingStore struct{}

func (failingStore) DeleteExpiredRows(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("database unavailable")
}

func (failingStore) DeleteEmptyBatches(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func TestRetentionJob_RunOnceError(t *testing.T) {
	job := NewRetentionJob(failingStore{}, time.Hour, time.Hour, quietLogger())

	result, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRetentionJob_StartStop(t *testing.T) {
	db := testutil.NewTestDB(t)
	job := NewRetentionJob(repository.NewBulkUploadRepository(db), time.Hour, time.Hour, quietLogger())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	job.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retention job did not stop")
	}
}
