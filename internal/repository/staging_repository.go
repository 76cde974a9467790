package repository

import (
	"context"
	"time"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const rowInsertBatchSize = 200

// --- Batch Methods ---

// CreateStagingBatch stores a new batch with its rows atomically unless the seller already holds
// maxStaging STAGING batches, in which case it returns ErrLimitReached. The seller's gate
// row is written first so concurrent uploads of one seller count and insert in turn.
// A non-positive maxStaging skips the check.
func (r *BulkUploadRepository) CreateStagingBatch(ctx context.Context, batch *models.UploadBatch, rows []models.StagingRow, maxStaging int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if maxStaging > 0 {
			gate := models.SellerUploadGate{SellerID: batch.SellerID, UpdatedAt: time.Now()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&gate).Error; err != nil {
				return err
			}
			// The update holds the gate's row lock until commit
			if err := tx.Model(&models.SellerUploadGate{}).
				Where("seller_id = ?", batch.SellerID).
				Update("updated_at", time.Now()).Error; err != nil {
				return err
			}

			var staging int64
			if err := tx.Model(&models.UploadBatch{}).
				Where("seller_id = ? AND status = ?", batch.SellerID, models.BatchStatusStaging).
				Count(&staging).Error; err != nil {
				return err
			}
			if staging >= int64(maxStaging) {
				return ErrLimitReached
			}
		}

		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].BatchID = batch.ID
		}
		return tx.CreateInBatches(rows, rowInsertBatchSize).Error
	})
}

// GetBatch retrieves a batch by ID
func (r *BulkUploadRepository) GetBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error) {
	var batch models.UploadBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

// CountStagingBatches counts the seller's batches still awaiting commit or cancel
func (r *BulkUploadRepository) CountStagingBatches(ctx context.Context, sellerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UploadBatch{}).
		Where("seller_id = ? AND status = ?", sellerID, models.BatchStatusStaging).
		Count(&count).Error
	return count, err
}

// UpdateBatchCounters writes validation counters and the inferred template type
func (r *BulkUploadRepository) UpdateBatchCounters(ctx context.Context, batch *models.UploadBatch) error {
	return r.db.WithContext(ctx).Model(&models.UploadBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"template_type":     batch.TemplateType,
			"total_rows":        batch.TotalRows,
			"valid_rows":        batch.ValidRows,
			"invalid_rows":      batch.InvalidRows,
			"skipped_rows":      batch.SkippedRows,
			"needs_specs_rows":  batch.NeedsSpecsRows,
			"needs_images_rows": batch.NeedsImagesRows,
			"new_product_rows":  batch.NewProductRows,
		}).Error
}

// ClaimBatchForCommit marks a STAGING batch as being committed.
// It returns false when the batch is not STAGING or is already claimed.
func (r *BulkUploadRepository) ClaimBatchForCommit(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UploadBatch{}).
		Where("id = ? AND status = ? AND commit_started_at IS NULL", id, models.BatchStatusStaging).
		Update("commit_started_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseCommitClaim clears the commit claim of a batch that is still STAGING
func (r *BulkUploadRepository) ReleaseCommitClaim(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.UploadBatch{}).
		Where("id = ? AND status = ?", id, models.BatchStatusStaging).
		Update("commit_started_at", nil).Error
}

// CompleteBatch moves a claimed batch to COMPLETED with its final counters
func (r *BulkUploadRepository) CompleteBatch(ctx context.Context, batch *models.UploadBatch) error {
	result := r.db.WithContext(ctx).Model(&models.UploadBatch{}).
		Where("id = ? AND status = ? AND commit_started_at IS NOT NULL", batch.ID, models.BatchStatusStaging).
		Updates(map[string]interface{}{
			"status":               models.BatchStatusCompleted,
			"committed_rows":       batch.CommittedRows,
			"skipped_rows":         batch.SkippedRows,
			"failed_rows":          batch.FailedRows,
			"new_products_created": batch.NewProductsCreated,
			"needs_specs_rows":     batch.NeedsSpecsRows,
			"needs_images_rows":    batch.NeedsImagesRows,
			"completed_at":         batch.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	batch.Status = models.BatchStatusCompleted
	return nil
}

// CancelBatch deletes a STAGING batch's rows and marks it CANCELLED.
// It returns false when the batch is not STAGING or a commit has claimed it.
func (r *BulkUploadRepository) CancelBatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.UploadBatch{}).
			Where("id = ? AND status = ? AND commit_started_at IS NULL", id, models.BatchStatusStaging).
			Updates(map[string]interface{}{
				"status":       models.BatchStatusCancelled,
				"cancelled_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("batch_id = ?", id).Delete(&models.StagingRow{}).Error; err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// --- Row Methods ---

// ListRowsByStatus returns a batch's rows in ascending row number order
func (r *BulkUploadRepository) ListRowsByStatus(ctx context.Context, batchID uuid.UUID, statuses ...models.RowStatus) ([]models.StagingRow, error) {
	var rows []models.StagingRow
	query := r.db.WithContext(ctx).Where("batch_id = ?", batchID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("row_number ASC").Find(&rows).Error
	return rows, err
}

// ListRowsPage returns one page of a batch's rows, optionally filtered by status
func (r *BulkUploadRepository) ListRowsPage(ctx context.Context, batchID uuid.UUID, statuses []models.RowStatus, limit, offset int) ([]models.StagingRow, int64, error) {
	var rows []models.StagingRow
	var total int64

	query := r.db.WithContext(ctx).Model(&models.StagingRow{}).Where("batch_id = ?", batchID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("row_number ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, total, err
}

// SaveRowResult stores the validation outcome of a PENDING row
func (r *BulkUploadRepository) SaveRowResult(ctx context.Context, row *models.StagingRow) error {
	if err := checkRowTransition(models.RowStatusPending, row.Status); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.StagingRow{}).
		Where("id = ? AND status = ?", row.ID, models.RowStatusPending).
		Updates(map[string]interface{}{
			"status":                row.Status,
			"template_type":         row.TemplateType,
			"matched_product_id":    row.MatchedProductID,
			"match_type":            row.MatchType,
			"match_confidence":      row.MatchConfidence,
			"match_explanation":     row.MatchExplanation,
			"will_create_product":   row.WillCreateProduct,
			"missing_specs":         row.MissingSpecs,
			"errors":                row.Errors,
			"attributes":            row.Attributes,
			"target_listing_status": row.TargetListingStatus,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// MarkRowCommitted moves a VALID row to COMMITTED and links its listing
func (r *BulkUploadRepository) MarkRowCommitted(ctx context.Context, rowID, listingID uuid.UUID) error {
	if err := checkRowTransition(models.RowStatusValid, models.RowStatusCommitted); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.StagingRow{}).
		Where("id = ? AND status = ?", rowID, models.RowStatusValid).
		Updates(map[string]interface{}{
			"status":     models.RowStatusCommitted,
			"listing_id": listingID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RecordRowErrors replaces the error list of a row without touching its status
func (r *BulkUploadRepository) RecordRowErrors(ctx context.Context, rowID uuid.UUID, rowErrors []models.RowError) error {
	if rowErrors == nil {
		rowErrors = []models.RowError{}
	}
	return r.db.WithContext(ctx).Model(&models.StagingRow{}).
		Where("id = ?", rowID).
		Update("errors", datatypes.NewJSONType(rowErrors)).Error
}

// SummarizeRows counts a batch's rows by outcome
func (r *BulkUploadRepository) SummarizeRows(ctx context.Context, batchID uuid.UUID) (*RowSummary, error) {
	var groups []struct {
		Status              models.RowStatus
		TargetListingStatus models.ListingStatus
		WillCreateProduct   bool
		Count               int
	}
	err := r.db.WithContext(ctx).Model(&models.StagingRow{}).
		Select("status, target_listing_status, will_create_product, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("status, target_listing_status, will_create_product").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	summary := &RowSummary{}
	for _, g := range groups {
		summary.Total += g.Count
		switch g.Status {
		case models.RowStatusPending:
			summary.Pending += g.Count
		case models.RowStatusInvalid:
			summary.Invalid += g.Count
		case models.RowStatusSkipped:
			summary.Skipped += g.Count
		case models.RowStatusValid, models.RowStatusCommitted:
			summary.Valid += g.Count
			if g.Status == models.RowStatusCommitted {
				summary.Committed += g.Count
			}
			switch g.TargetListingStatus {
			case models.ListingStatusNeedsSpecs:
				summary.NeedsSpecs += g.Count
			case models.ListingStatusNeedsImages:
				summary.NeedsImages += g.Count
			}
			if g.WillCreateProduct {
				summary.NewProducts += g.Count
			}
		}
	}
	return summary, nil
}

// --- Retention Methods ---

// DeleteExpiredRows removes rows of finished batches created before cutoff.
// COMMITTED rows whose listing still exists are kept.
func (r *BulkUploadRepository) DeleteExpiredRows(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM staging_rows
		WHERE batch_id IN (
			SELECT id FROM upload_batches WHERE status IN (?, ?) AND created_at < ?
		)
		AND NOT (
			status = ? AND EXISTS (SELECT 1 FROM listings WHERE listings.id = staging_rows.listing_id)
		)`,
		models.BatchStatusCompleted, models.BatchStatusCancelled, cutoff, models.RowStatusCommitted)
	return result.RowsAffected, result.Error
}

// DeleteEmptyBatches removes finished batches created before cutoff that have no rows left
func (r *BulkUploadRepository) DeleteEmptyBatches(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM upload_batches
		WHERE status IN (?, ?) AND created_at < ?
		AND NOT EXISTS (SELECT 1 FROM staging_rows WHERE staging_rows.batch_id = upload_batches.id)`,
		models.BatchStatusCompleted, models.BatchStatusCancelled, cutoff)
	return result.RowsAffected, result.Error
}
