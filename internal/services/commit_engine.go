package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bulk-upload-service/internal/metrics"
	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const uncategorized = "Uncategorized"

// CommitNotifier receives the summary of a committed batch.
// Implementations must not block the commit on delivery.
type CommitNotifier interface {
	PublishBatchCommitted(ctx context.Context, summary *models.CommitSummary)
}

// CommitService turns the VALID rows of a staged batch into catalog products and listings
type CommitService struct {
	repo     repository.BulkUploadRepositoryInterface
	skus     *SKUGenerator
	notifier CommitNotifier
	logger   *logrus.Entry
	now      func() time.Time
}

// NewCommitService creates a new CommitService; notifier may be nil
func NewCommitService(repo repository.BulkUploadRepositoryInterface, skus *SKUGenerator, notifier CommitNotifier, logger *logrus.Logger) *CommitService {
	return &CommitService{
		repo:     repo,
		skus:     skus,
		notifier: notifier,
		logger:   logger.WithField("component", "commit_engine"),
		now:      time.Now,
	}
}

// Commit claims a STAGING batch and commits each VALID row independently.
// A failed row is recorded and counted; it never stops the remaining rows or the batch completing.
// A batch with rows still awaiting validation is refused with ErrValidationIncomplete.
func (s *CommitService) Commit(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.CommitSummary, error) {
	batch, err := loadOwnedBatch(ctx, s.repo, sellerID, batchID)
	if err != nil {
		return nil, err
	}
	if err := batchStateError(batch); err != nil {
		return nil, err
	}

	before, err := s.repo.SummarizeRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize rows: %w", err)
	}
	if before.Pending > 0 {
		return nil, fmt.Errorf("%w: %d rows", ErrValidationIncomplete, before.Pending)
	}

	shopName := ""
	if shop, err := s.repo.GetShop(ctx, batch.ShopID); err == nil {
		shopName = shop.Name
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load shop: %w", err)
	}

	startedAt := s.now()
	claimed, err := s.repo.ClaimBatchForCommit(ctx, batchID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	if !claimed {
		return nil, s.rejectedClaim(ctx, batchID)
	}
	batch.CommitStartedAt = &startedAt

	log := s.logger.WithFields(logrus.Fields{"batch_id": batch.ID, "seller_id": batch.SellerID})
	log.Info("Commit started")

	rows, err := s.repo.ListRowsByStatus(ctx, batchID, models.RowStatusValid)
	if err != nil {
		s.releaseClaim(ctx, batchID)
		return nil, fmt.Errorf("failed to load valid rows: %w", err)
	}

	summary := &models.CommitSummary{
		BatchID:  batch.ID,
		SellerID: batch.SellerID,
		ShopID:   batch.ShopID,
		FileName: batch.FileName,
		Skipped:  before.Skipped,
		Listings: []models.CommittedListing{},
	}

	for i := range rows {
		row := &rows[i]
		committed, err := s.commitRow(ctx, batch, shopName, row, startedAt)
		if err != nil {
			summary.Failed++
			metrics.RecordRowCommitted("failed")
			log.WithError(err).WithField("row", row.RowNumber).Warn("Row commit failed")
			s.recordFailure(ctx, row, err)
			continue
		}

		summary.Committed++
		metrics.RecordRowCommitted("committed")
		if committed.NewProduct {
			summary.NewProductsCreated++
		}
		switch committed.Status {
		case models.ListingStatusNeedsSpecs:
			summary.NeedsSpecs++
		case models.ListingStatusNeedsImages:
			summary.NeedsImages++
		}
		summary.Listings = append(summary.Listings, *committed)
	}

	completedAt := s.now()
	summary.CompletedAt = completedAt
	// Rows committed by an earlier attempt that could not complete still count
	batch.CommittedRows = before.Committed + summary.Committed
	batch.SkippedRows = summary.Skipped
	batch.FailedRows = summary.Failed
	batch.NewProductsCreated = summary.NewProductsCreated
	batch.NeedsSpecsRows = summary.NeedsSpecs
	batch.NeedsImagesRows = summary.NeedsImages
	batch.CompletedAt = &completedAt
	if err := s.repo.CompleteBatch(ctx, batch); err != nil {
		// Committed rows are already COMMITTED, so a retry only picks up what is left
		s.releaseClaim(ctx, batchID)
		return nil, fmt.Errorf("failed to complete batch: %w", err)
	}
	metrics.RecordBatchFinished(string(models.BatchStatusCompleted))

	log.WithFields(logrus.Fields{
		"committed":    summary.Committed,
		"failed":       summary.Failed,
		"new_products": summary.NewProductsCreated,
	}).Info("Commit completed")

	if s.notifier != nil {
		s.notifier.PublishBatchCommitted(ctx, summary)
	}
	return summary, nil
}

// commitRow creates the product when needed, the listing and the COMMITTED mark in one transaction
func (s *CommitService) commitRow(ctx context.Context, batch *models.UploadBatch, shopName string, row *models.StagingRow, at time.Time) (*models.CommittedListing, error) {
	var product *models.BaseProduct
	if row.MatchedProductID != nil {
		p, err := s.canonicalProduct(ctx, *row.MatchedProductID)
		if err != nil {
			return nil, err
		}
		product = p
	}

	newProduct := product == nil
	if newProduct {
		category := row.Category
		if category == "" {
			category = uncategorized
		}
		product = &models.BaseProduct{
			Name:              row.ProductName,
			NormalizedName:    row.NormalizedName,
			Brand:             row.Brand,
			Category:          category,
			Keywords:          datatypes.NewJSONType(productKeywords(row.NormalizedName, row.Brand)),
			ApprovalStatus:    models.ApprovalStatusPending,
			CreatedBySellerID: batch.SellerID,
		}
	}

	// The SKU is reserved before the transaction opens; the counter has its own connection
	sku := row.SKU
	if sku == "" {
		generated, err := s.skus.Generate(ctx, batch.ShopID, shopName, at)
		if err != nil {
			return nil, err
		}
		sku = generated
	}

	status := row.TargetListingStatus
	if status == "" {
		status = models.ListingStatusNeedsImages
	}
	condition := row.Condition
	if condition == "" {
		condition = models.ConditionNew
	}
	batchID := batch.ID

	listing := &models.Listing{
		SellerID:        batch.SellerID,
		ShopID:          batch.ShopID,
		SKU:             sku,
		ProductName:     row.ProductName,
		NormalizedName:  row.NormalizedName,
		BasePrice:       row.BasePrice,
		DisplayPrice:    row.DisplayPrice,
		StockQuantity:   row.StockQuantity,
		Condition:       condition,
		Description:     row.Description,
		Attributes:      row.Attributes,
		Status:          status,
		BulkUploadID:    &batchID,
		SourceRowNumber: row.RowNumber,
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repository.BulkUploadRepositoryInterface) error {
		if newProduct {
			if err := txRepo.CreateProduct(ctx, product); err != nil {
				return fmt.Errorf("create product: %w", err)
			}
		}
		listing.BaseProductID = product.ID
		if err := txRepo.CreateListing(ctx, listing); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("SKU %s is already used in this shop", sku)
			}
			return fmt.Errorf("create listing: %w", err)
		}
		return txRepo.MarkRowCommitted(ctx, row.ID, listing.ID)
	})
	if err != nil {
		return nil, err
	}

	return &models.CommittedListing{
		ListingID:  listing.ID,
		ProductID:  product.ID,
		RowNumber:  row.RowNumber,
		Name:       listing.ProductName,
		SKU:        listing.SKU,
		Status:     listing.Status,
		NewProduct: newProduct,
	}, nil
}

// canonicalProduct follows merges from a matched product. A product that has since
// been rejected or removed yields nil, so the row creates a new one.
func (s *CommitService) canonicalProduct(ctx context.Context, id uuid.UUID) (*models.BaseProduct, error) {
	for hop := 0; hop <= maxMergeHops; hop++ {
		product, err := s.repo.GetProductByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("load matched product: %w", err)
		}
		switch {
		case product.ApprovalStatus == models.ApprovalStatusMerged && product.MergedIntoID != nil:
			id = *product.MergedIntoID
		case product.ApprovalStatus.IsActive():
			return product, nil
		default:
			return nil, nil
		}
	}
	return nil, nil
}

func (s *CommitService) recordFailure(ctx context.Context, row *models.StagingRow, cause error) {
	rowErrors := append(row.RowErrors(), models.RowError{
		RowNumber: row.RowNumber,
		Kind:      models.ErrorKindCommitFailure,
		Code:      models.RowErrorCommitFailed,
		Message:   cause.Error(),
	})
	if err := s.repo.RecordRowErrors(ctx, row.ID, rowErrors); err != nil {
		s.logger.WithError(err).WithField("row_id", row.ID).Error("Failed to record commit failure")
	}
}

// releaseClaim clears the commit claim after a failure so the batch can be committed or cancelled again
func (s *CommitService) releaseClaim(ctx context.Context, batchID uuid.UUID) {
	if err := s.repo.ReleaseCommitClaim(context.WithoutCancel(ctx), batchID); err != nil {
		s.logger.WithError(err).WithField("batch_id", batchID).Error("Failed to release commit claim")
	}
}

// rejectedClaim reports why another request holds or finished the batch
func (s *CommitService) rejectedClaim(ctx context.Context, batchID uuid.UUID) error {
	current, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBatchNotFound
		}
		return err
	}
	if err := batchStateError(current); err != nil {
		return err
	}
	return ErrCommitInProgress
}

// Cancel deletes a STAGING batch's rows and marks it CANCELLED
func (s *CommitService) Cancel(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error) {
	batch, err := loadOwnedBatch(ctx, s.repo, sellerID, batchID)
	if err != nil {
		return nil, err
	}
	if err := batchStateError(batch); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.CancelBatch(ctx, batchID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel batch: %w", err)
	}
	if !cancelled {
		return nil, s.rejectedClaim(ctx, batchID)
	}
	metrics.RecordBatchFinished(string(models.BatchStatusCancelled))
	s.logger.WithField("batch_id", batchID).Info("Batch cancelled")

	return s.repo.GetBatch(ctx, batchID)
}

// productKeywords are the significant words of a new product's name plus its brand
func productKeywords(normalizedName, brand string) []string {
	keywords := significantWords(normalizedName, 2)
	if b := NormalizeProductName(brand); b != "" {
		found := false
		for _, k := range keywords {
			if k == b {
				found = true
				break
			}
		}
		if !found {
			keywords = append(keywords, b)
		}
	}
	if keywords == nil {
		keywords = []string{}
	}
	return keywords
}

