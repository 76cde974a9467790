package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrSimilarityUnsupported  = errors.New("database similarity function unavailable")
	ErrConcurrentModification = errors.New("record was modified by another request")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrLimitReached           = errors.New("limit reached")
)

// RowSummary aggregates the staged rows of one batch
type RowSummary struct {
	Total       int
	Pending     int
	Valid       int
	Invalid     int
	Skipped     int
	Committed   int
	NeedsSpecs  int
	NeedsImages int
	NewProducts int
}

// ScoredProduct is a catalog product with a database-computed similarity
type ScoredProduct struct {
	models.BaseProduct `gorm:"embedded"`
	Score              float64 `gorm:"column:score"`
}

// BulkUploadRepositoryInterface defines the persistence operations of the upload pipeline
type BulkUploadRepositoryInterface interface {
	// Batches
	CreateStagingBatch(ctx context.Context, batch *models.UploadBatch, rows []models.StagingRow, maxStaging int) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error)
	CountStagingBatches(ctx context.Context, sellerID string) (int64, error)
	UpdateBatchCounters(ctx context.Context, batch *models.UploadBatch) error
	ClaimBatchForCommit(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ReleaseCommitClaim(ctx context.Context, id uuid.UUID) error
	CompleteBatch(ctx context.Context, batch *models.UploadBatch) error
	CancelBatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Rows
	ListRowsByStatus(ctx context.Context, batchID uuid.UUID, statuses ...models.RowStatus) ([]models.StagingRow, error)
	ListRowsPage(ctx context.Context, batchID uuid.UUID, statuses []models.RowStatus, limit, offset int) ([]models.StagingRow, int64, error)
	SaveRowResult(ctx context.Context, row *models.StagingRow) error
	MarkRowCommitted(ctx context.Context, rowID, listingID uuid.UUID) error
	RecordRowErrors(ctx context.Context, rowID uuid.UUID, rowErrors []models.RowError) error
	SummarizeRows(ctx context.Context, batchID uuid.UUID) (*RowSummary, error)

	// Catalog
	ListingNameExists(ctx context.Context, shopID, normalizedName string) (bool, error)
	ListingSKUExists(ctx context.Context, shopID, sku string) (bool, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.BaseProduct, error)
	CreateProduct(ctx context.Context, product *models.BaseProduct) error
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetShop(ctx context.Context, shopID string) (*models.Shop, error)
	NextSKUSequence(ctx context.Context, shopID, dateCode string) (int64, error)

	// Transaction support
	WithTransaction(ctx context.Context, fn func(txRepo BulkUploadRepositoryInterface) error) error
}

// BulkUploadRepository handles database operations for uploads, staging and the catalog
type BulkUploadRepository struct {
	db *gorm.DB
}

// NewBulkUploadRepository creates a new BulkUploadRepository
func NewBulkUploadRepository(db *gorm.DB) *BulkUploadRepository {
	return &BulkUploadRepository{db: db}
}

// WithTransaction runs fn against a repository bound to a single database transaction
func (r *BulkUploadRepository) WithTransaction(ctx context.Context, fn func(txRepo BulkUploadRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&BulkUploadRepository{db: tx})
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isUndefinedFunction(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42883"
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such function")
}

// checkRowTransition rejects row status changes the row lifecycle does not allow
func checkRowTransition(from, to models.RowStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
