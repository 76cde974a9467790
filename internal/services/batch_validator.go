package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bulk-upload-service/internal/metrics"
	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Matcher finds an existing catalog product for an uploaded row
type Matcher interface {
	Match(ctx context.Context, q MatchQuery) (*MatchResult, error)
}

// StagingLimits bound how much unreviewed work a seller may hold
type StagingLimits struct {
	MaxStagingBatches int
	MaxRowsPerUpload  int
}

// StageInput is one parsed upload ready for staging
type StageInput struct {
	SellerID string
	ShopID   string
	FileName string
	Rows     []models.RawRow
}

// PreviewFilter selects which rows a preview returns
type PreviewFilter string

const (
	PreviewAll     PreviewFilter = "all"
	PreviewValid   PreviewFilter = "valid"
	PreviewInvalid PreviewFilter = "invalid"
)

// Statuses returns the row statuses the filter covers; nil means every status
func (f PreviewFilter) Statuses() []models.RowStatus {
	switch f {
	case PreviewValid:
		return []models.RowStatus{models.RowStatusValid, models.RowStatusCommitted}
	case PreviewInvalid:
		return []models.RowStatus{models.RowStatusInvalid, models.RowStatusSkipped}
	default:
		return nil
	}
}

// PreviewPage is one page of staged rows for seller review
type PreviewPage struct {
	Batch      *models.UploadBatch    `json:"batch"`
	Filter     PreviewFilter          `json:"filter"`
	Rows       []models.StagingRow    `json:"rows"`
	Pagination *models.PaginationInfo `json:"pagination"`
}

// StagingService stages uploads and validates their rows
type StagingService struct {
	repo    repository.BulkUploadRepositoryInterface
	matcher Matcher
	specs   *SpecValidator
	limits  StagingLimits
	logger  *logrus.Entry
}

// NewStagingService creates a new StagingService
func NewStagingService(repo repository.BulkUploadRepositoryInterface, matcher Matcher, specs *SpecValidator, limits StagingLimits, logger *logrus.Logger) *StagingService {
	return &StagingService{
		repo:    repo,
		matcher: matcher,
		specs:   specs,
		limits:  limits,
		logger:  logger.WithField("component", "batch_validator"),
	}
}

// StageBatch parses every row, stores the batch with its rows and validates it
func (s *StagingService) StageBatch(ctx context.Context, in StageInput) (*models.UploadBatch, error) {
	if len(in.Rows) == 0 {
		return nil, ErrEmptyUpload
	}
	if s.limits.MaxRowsPerUpload > 0 && len(in.Rows) > s.limits.MaxRowsPerUpload {
		return nil, fmt.Errorf("%w: %d rows, limit is %d", ErrTooManyRows, len(in.Rows), s.limits.MaxRowsPerUpload)
	}

	shopID := in.ShopID
	if shopID == "" {
		shopID = in.SellerID
	}

	rows := make([]models.StagingRow, 0, len(in.Rows))
	templates := make(map[models.TemplateType]bool)
	// Row numbers are the spreadsheet lines when ingestion recorded them and
	// always strictly increase, which keeps them unique within the batch
	prev := 0
	for _, raw := range in.Rows {
		line, raw := raw.SplitSourceRow()
		if line <= prev {
			line = prev + 1
		}
		prev = line
		row := stagedRow(line, raw)
		templates[row.TemplateType] = true
		rows = append(rows, row)
	}

	templateType := models.TemplateAuto
	if len(templates) == 1 {
		for t := range templates {
			templateType = t
		}
	}

	batch := &models.UploadBatch{
		SellerID:     in.SellerID,
		ShopID:       shopID,
		FileName:     in.FileName,
		TemplateType: templateType,
		Status:       models.BatchStatusStaging,
		TotalRows:    len(rows),
	}
	if err := s.repo.CreateStagingBatch(ctx, batch, rows, s.limits.MaxStagingBatches); err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			return nil, ErrStagingLimitReached
		}
		return nil, fmt.Errorf("failed to stage batch: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":  batch.ID,
		"seller_id": batch.SellerID,
		"rows":      len(rows),
		"template":  templateType,
	}).Info("Upload staged")

	return s.ValidateBatch(ctx, batch.ID)
}

// stagedRow parses one raw row into a PENDING staging row
func stagedRow(rowNumber int, raw models.RawRow) models.StagingRow {
	row := models.StagingRow{
		RowNumber: rowNumber,
		RawData:   datatypes.JSONMap(raw),
		Status:    models.RowStatusPending,
	}

	parsed, rowErrors := ParseRow(rowNumber, raw)
	if len(rowErrors) > 0 {
		row.TemplateType = TemplateOf(ClassifyRow(raw))
		row.Errors = datatypes.NewJSONType(rowErrors)
		return row
	}

	row.Parsed = true
	row.TemplateType = parsed.TemplateType
	row.ProductName = parsed.Name
	row.NormalizedName = parsed.NormalizedName
	row.Category = parsed.Category
	row.Brand = parsed.Brand
	row.SKU = parsed.SKU
	row.BasePrice = parsed.BasePrice
	row.DisplayPrice = parsed.DisplayPrice
	row.StockQuantity = parsed.StockQuantity
	row.Condition = parsed.Condition
	row.Description = parsed.Description
	row.Attributes = datatypes.NewJSONType(parsed.Attributes)
	return row
}

// batchTracker remembers the names and SKUs already accepted in a batch
type batchTracker struct {
	names map[string]int
	skus  map[string]int
}

func (t *batchTracker) accept(row *models.StagingRow) {
	if row.NormalizedName != "" {
		if _, ok := t.names[row.NormalizedName]; !ok {
			t.names[row.NormalizedName] = row.RowNumber
		}
	}
	if sku := strings.ToLower(row.SKU); sku != "" {
		if _, ok := t.skus[sku]; !ok {
			t.skus[sku] = row.RowNumber
		}
	}
}

// ValidateBatch resolves every PENDING row of a batch in ascending row order and refreshes its counters.
// An infrastructure error stops the run; rows not yet reached stay PENDING and a re-run resumes them.
func (s *StagingService) ValidateBatch(ctx context.Context, batchID uuid.UUID) (*models.UploadBatch, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	if err := batchStateError(batch); err != nil {
		return nil, err
	}

	accepted, err := s.repo.ListRowsByStatus(ctx, batchID, models.RowStatusValid, models.RowStatusCommitted)
	if err != nil {
		return nil, fmt.Errorf("failed to load accepted rows: %w", err)
	}
	tracker := &batchTracker{names: make(map[string]int), skus: make(map[string]int)}
	for i := range accepted {
		tracker.accept(&accepted[i])
	}

	pending, err := s.repo.ListRowsByStatus(ctx, batchID, models.RowStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending rows: %w", err)
	}

	for i := range pending {
		row := &pending[i]
		if err := s.validateRow(ctx, batch, row, tracker); err != nil {
			return nil, fmt.Errorf("row %d: %w", row.RowNumber, err)
		}
		if err := s.repo.SaveRowResult(ctx, row); err != nil {
			return nil, fmt.Errorf("row %d: failed to save result: %w", row.RowNumber, err)
		}
		if row.Status == models.RowStatusValid {
			tracker.accept(row)
		}
		metrics.RecordRowValidated(string(row.Status))
	}

	summary, err := s.repo.SummarizeRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize rows: %w", err)
	}
	batch.TotalRows = summary.Total
	batch.ValidRows = summary.Valid
	batch.InvalidRows = summary.Invalid
	batch.SkippedRows = summary.Skipped
	batch.NeedsSpecsRows = summary.NeedsSpecs
	batch.NeedsImagesRows = summary.NeedsImages
	batch.NewProductRows = summary.NewProducts
	if err := s.repo.UpdateBatchCounters(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch counters: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"valid":    batch.ValidRows,
		"invalid":  batch.InvalidRows,
		"skipped":  batch.SkippedRows,
	}).Info("Batch validated")

	return batch, nil
}

// validateRow decides the status of one PENDING row.
// Duplicates short-circuit before matching so a skipped row never touches the catalog.
func (s *StagingService) validateRow(ctx context.Context, batch *models.UploadBatch, row *models.StagingRow, tracker *batchTracker) error {
	rowErrors := append([]models.RowError{}, row.RowErrors()...)

	if !row.Parsed || row.HasHardErrors() {
		row.Status = models.RowStatusInvalid
		row.Errors = datatypes.NewJSONType(rowErrors)
		return nil
	}

	skip := func(field, code, message string, ref int) {
		rowErrors = append(rowErrors, models.RowError{
			RowNumber:    row.RowNumber,
			Field:        field,
			Kind:         models.ErrorKindDuplicate,
			Code:         code,
			Message:      message,
			RefRowNumber: ref,
		})
		row.Status = models.RowStatusSkipped
		row.Errors = datatypes.NewJSONType(rowErrors)
	}

	exists, err := s.repo.ListingNameExists(ctx, batch.ShopID, row.NormalizedName)
	if err != nil {
		return fmt.Errorf("duplicate name check: %w", err)
	}
	if exists {
		skip("name", models.RowErrorDuplicateInShop, fmt.Sprintf("%q is already listed in this shop", row.ProductName), 0)
		return nil
	}

	if row.SKU != "" {
		exists, err := s.repo.ListingSKUExists(ctx, batch.ShopID, row.SKU)
		if err != nil {
			return fmt.Errorf("duplicate SKU check: %w", err)
		}
		if exists {
			skip("sku", models.RowErrorDuplicateSKU, fmt.Sprintf("SKU %q is already used in this shop", row.SKU), 0)
			return nil
		}
	}

	if earlier, ok := tracker.names[row.NormalizedName]; ok {
		skip("name", models.RowErrorDuplicateInBatch, fmt.Sprintf("Duplicate of row %d in this upload", earlier), earlier)
		return nil
	}
	if earlier, ok := tracker.skus[strings.ToLower(row.SKU)]; ok && row.SKU != "" {
		skip("sku", models.RowErrorDuplicateInBatch, fmt.Sprintf("SKU %q is also used by row %d in this upload", row.SKU, earlier), earlier)
		return nil
	}

	match, err := s.matcher.Match(ctx, MatchQuery{Name: row.ProductName, Brand: row.Brand, Category: row.Category})
	if err != nil {
		return fmt.Errorf("product match: %w", err)
	}
	row.MatchType = string(match.MatchType)
	row.MatchConfidence = match.Confidence
	row.MatchExplanation = match.Explanation
	if match.Matched {
		row.MatchedProductID = match.ProductID
		row.WillCreateProduct = false
	} else {
		row.MatchedProductID = nil
		row.WillCreateProduct = true
	}

	spec := s.specs.Validate(ctx, row.Category, row.Attributes.Data())
	row.Attributes = datatypes.NewJSONType(spec.Normalized)
	row.MissingSpecs = datatypes.NewJSONType(spec.Missing)
	row.TargetListingStatus = spec.TargetStatus
	for _, key := range spec.Missing {
		rowErrors = append(rowErrors, models.RowError{
			RowNumber: row.RowNumber,
			Field:     key,
			Kind:      models.ErrorKindSpecDeficiency,
			Code:      models.RowErrorMissingSpec,
			Message:   fmt.Sprintf("Missing required specification: %s", key),
		})
	}
	for _, specErr := range spec.Errors {
		specErr.RowNumber = row.RowNumber
		rowErrors = append(rowErrors, specErr)
	}

	row.Status = models.RowStatusValid
	row.Errors = datatypes.NewJSONType(rowErrors)

	s.logger.WithFields(logrus.Fields{
		"batch_id":      batch.ID,
		"row":           row.RowNumber,
		"match_type":    row.MatchType,
		"confidence":    row.MatchConfidence,
		"target_status": row.TargetListingStatus,
	}).Debug("Row validated")
	return nil
}

// ResumeValidation finishes validating a seller's batch whose staging run stopped partway
func (s *StagingService) ResumeValidation(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error) {
	if _, err := loadOwnedBatch(ctx, s.repo, sellerID, batchID); err != nil {
		return nil, err
	}
	return s.ValidateBatch(ctx, batchID)
}

// GetBatch returns a batch owned by sellerID
func (s *StagingService) GetBatch(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error) {
	return loadOwnedBatch(ctx, s.repo, sellerID, batchID)
}

// Preview returns one page of a batch's rows without changing anything
func (s *StagingService) Preview(ctx context.Context, sellerID string, batchID uuid.UUID, filter PreviewFilter, page, limit int) (*PreviewPage, error) {
	batch, err := loadOwnedBatch(ctx, s.repo, sellerID, batchID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	rows, total, err := s.repo.ListRowsPage(ctx, batchID, filter.Statuses(), limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	pagination := models.NewPaginationInfo(page, limit, total)

	return &PreviewPage{
		Batch:      batch,
		Filter:     filter,
		Rows:       rows,
		Pagination: &pagination,
	}, nil
}

// loadOwnedBatch hides batches of other sellers behind ErrBatchNotFound
func loadOwnedBatch(ctx context.Context, repo repository.BulkUploadRepositoryInterface, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error) {
	batch, err := repo.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	if batch.SellerID != sellerID {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// batchStateError explains why a batch can no longer be validated, committed or cancelled
func batchStateError(batch *models.UploadBatch) error {
	if batch.Status.IsTerminal() {
		if batch.Status == models.BatchStatusCancelled {
			return ErrBatchCancelled
		}
		return ErrBatchAlreadyCompleted
	}
	if batch.CommitStartedAt != nil {
		return ErrCommitInProgress
	}
	return nil
}
