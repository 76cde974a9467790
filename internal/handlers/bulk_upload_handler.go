package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bulk-upload-service/internal/ingest"
	"bulk-upload-service/internal/middleware"
	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StagingService stages uploads and serves their review views
type StagingService interface {
	StageBatch(ctx context.Context, in services.StageInput) (*models.UploadBatch, error)
	GetBatch(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error)
	Preview(ctx context.Context, sellerID string, batchID uuid.UUID, filter services.PreviewFilter, page, limit int) (*services.PreviewPage, error)
	CorrectionReport(ctx context.Context, sellerID string, batchID uuid.UUID) (*services.CorrectionReport, error)
	ResumeValidation(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error)
}

// CommitService finalizes or abandons staged batches
type CommitService interface {
	Commit(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.CommitSummary, error)
	Cancel(ctx context.Context, sellerID string, batchID uuid.UUID) (*models.UploadBatch, error)
}

// RuleRefresher reloads category spec rules
type RuleRefresher interface {
	Refresh(ctx context.Context) error
}

// UploadLimits bounds request sizes and page sizes
type UploadLimits struct {
	MaxUploadBytes  int64
	DefaultPageSize int
	MaxPageSize     int
}

type BulkUploadHandler struct {
	staging StagingService
	commits CommitService
	rules   RuleRefresher
	limits  UploadLimits
	logger  *logrus.Entry
}

func NewBulkUploadHandler(staging StagingService, commits CommitService, rules RuleRefresher, limits UploadLimits, logger *logrus.Logger) *BulkUploadHandler {
	if limits.DefaultPageSize < 1 {
		limits.DefaultPageSize = 20
	}
	if limits.MaxPageSize < limits.DefaultPageSize {
		limits.MaxPageSize = limits.DefaultPageSize
	}
	return &BulkUploadHandler{
		staging: staging,
		commits: commits,
		rules:   rules,
		limits:  limits,
		logger:  logger.WithField("component", "bulk_upload_handler"),
	}
}

// RegisterRoutes mounts the upload endpoints on a seller-scoped group
func (h *BulkUploadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	uploads := rg.Group("/bulk-uploads")
	{
		uploads.POST("", h.Upload)
		uploads.GET("/template", h.GetTemplate)
		uploads.GET("/:id", h.GetBatch)
		uploads.GET("/:id/preview", h.Preview)
		uploads.GET("/:id/corrections", h.GetCorrections)
		uploads.POST("/:id/validate", h.Validate)
		uploads.POST("/:id/commit", h.Commit)
		uploads.POST("/:id/cancel", h.Cancel)
	}
}

// RegisterAdminRoutes mounts catalog maintenance endpoints on an admin-only group
func (h *BulkUploadHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/spec-rules/refresh", h.RefreshSpecRules)
}

// Upload stages a spreadsheet for review
// @Summary Upload a product spreadsheet
// @Description Parses a CSV or XLSX file, stages every row and validates it. Nothing is published until the batch is committed.
// @Tags bulk-uploads
// @Accept multipart/form-data
// @Produce json
// @Param X-Seller-ID header string true "Seller ID"
// @Param X-Shop-ID header string false "Shop ID, defaults to the seller"
// @Param file formData file true "CSV or XLSX file"
// @Success 201 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /bulk-uploads [post]
func (h *BulkUploadHandler) Upload(c *gin.Context) {
	startTime := time.Now()

	if h.limits.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxUploadBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
				"The file is larger than "+strconv.FormatInt(tooLarge.Limit/(1024*1024), 10)+"MB")
			return
		}
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return
	}
	defer file.Close()

	format, err := ingest.DetectFormat(header.Filename)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", "Only CSV and XLSX files are supported")
		return
	}

	rows, err := ingest.Read(file, format)
	if err != nil {
		respondError(c, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	batch, err := h.staging.StageBatch(c.Request.Context(), services.StageInput{
		SellerID: middleware.GetSellerID(c),
		ShopID:   middleware.GetShopID(c),
		FileName: header.Filename,
		Rows:     rows,
	})
	if err != nil {
		h.handleServiceError(c, err, "Failed to stage upload")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"batch_id":      batch.ID,
		"file":          header.Filename,
		"rows":          batch.TotalRows,
		"processing_ms": time.Since(startTime).Milliseconds(),
	}).Info("Upload processed")

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    batch,
	})
}

// GetBatch returns a batch and its counters
func (h *BulkUploadHandler) GetBatch(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	batch, err := h.staging.GetBatch(c.Request.Context(), middleware.GetSellerID(c), batchID)
	if err != nil {
		h.handleServiceError(c, err, "Failed to retrieve upload")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    batch,
	})
}

// Preview lists staged rows without changing them
// @Summary Preview staged rows
// @Tags bulk-uploads
// @Produce json
// @Param id path string true "Batch ID"
// @Param filter query string false "all, valid or invalid" default(all)
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Rows per page" default(20)
// @Success 200 {object} models.ListResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /bulk-uploads/{id}/preview [get]
func (h *BulkUploadHandler) Preview(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	filter := services.PreviewFilter(strings.ToLower(c.DefaultQuery("filter", string(services.PreviewAll))))
	switch filter {
	case services.PreviewAll, services.PreviewValid, services.PreviewInvalid:
	default:
		respondError(c, http.StatusBadRequest, "INVALID_FILTER", "filter must be one of all, valid or invalid")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.limits.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > h.limits.MaxPageSize {
		limit = h.limits.DefaultPageSize
	}

	preview, err := h.staging.Preview(c.Request.Context(), middleware.GetSellerID(c), batchID, filter, page, limit)
	if err != nil {
		h.handleServiceError(c, err, "Failed to load preview")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       preview.Rows,
		"batch":      preview.Batch,
		"filter":     preview.Filter,
		"pagination": preview.Pagination,
	})
}

// GetCorrections exports the rejected rows with reasons, as JSON, CSV or XLSX
func (h *BulkUploadHandler) GetCorrections(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	report, err := h.staging.CorrectionReport(c.Request.Context(), middleware.GetSellerID(c), batchID)
	if err != nil {
		h.handleServiceError(c, err, "Failed to build correction report")
		return
	}

	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "xlsx":
		if err := writeCorrectionsXLSX(c, report); err != nil {
			h.logger.WithError(err).WithField("batch_id", batchID).Error("Failed to write correction workbook")
		}
	case "csv":
		if err := writeCorrectionsCSV(c, report); err != nil {
			h.logger.WithError(err).WithField("batch_id", batchID).Error("Failed to write correction CSV")
		}
	default:
		c.JSON(http.StatusOK, models.SuccessResponse{
			Success: true,
			Data:    report,
		})
	}
}

// Validate finishes validating rows an interrupted upload left pending
// @Summary Resume validation of a staged upload
// @Tags bulk-uploads
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /bulk-uploads/{id}/validate [post]
func (h *BulkUploadHandler) Validate(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	batch, err := h.staging.ResumeValidation(c.Request.Context(), middleware.GetSellerID(c), batchID)
	if err != nil {
		h.handleServiceError(c, err, "Failed to validate upload")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    batch,
	})
}

// Commit publishes the VALID rows of a batch as listings
// @Summary Commit a staged upload
// @Description Creates listings for every VALID row. Rows that fail are recorded and do not stop the batch.
// @Tags bulk-uploads
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /bulk-uploads/{id}/commit [post]
func (h *BulkUploadHandler) Commit(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	summary, err := h.commits.Commit(c.Request.Context(), middleware.GetSellerID(c), batchID)
	if err != nil {
		h.handleServiceError(c, err, "Failed to commit upload")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    summary,
	})
}

// Cancel discards a staged batch
func (h *BulkUploadHandler) Cancel(c *gin.Context) {
	batchID, ok := parseBatchID(c)
	if !ok {
		return
	}

	batch, err := h.commits.Cancel(c.Request.Context(), middleware.GetSellerID(c), batchID)
	if err != nil {
		h.handleServiceError(c, err, "Failed to cancel upload")
		return
	}

	message := "Upload cancelled"
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    batch,
		Message: &message,
	})
}

// RefreshSpecRules reloads category spec rules from the database
func (h *BulkUploadHandler) RefreshSpecRules(c *gin.Context) {
	if err := h.rules.Refresh(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Spec rule refresh failed")
		respondError(c, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to reload spec rules")
		return
	}

	message := "Spec rules reloaded"
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: &message,
	})
}

func parseBatchID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid upload ID format")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps service sentinels to HTTP responses
func (h *BulkUploadHandler) handleServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrBatchNotFound):
		respondError(c, http.StatusNotFound, "BATCH_NOT_FOUND", "Upload not found")
	case errors.Is(err, services.ErrBatchAlreadyCompleted):
		respondError(c, http.StatusConflict, "BATCH_COMPLETED", "This upload has already been committed")
	case errors.Is(err, services.ErrBatchCancelled):
		respondError(c, http.StatusConflict, "BATCH_CANCELLED", "This upload has been cancelled")
	case errors.Is(err, services.ErrCommitInProgress):
		respondError(c, http.StatusConflict, "COMMIT_IN_PROGRESS", "This upload is already being committed")
	case errors.Is(err, services.ErrValidationIncomplete):
		respondError(c, http.StatusConflict, "VALIDATION_INCOMPLETE", "Some rows have not been validated yet. Validate the upload again before committing.")
	case errors.Is(err, services.ErrStagingLimitReached):
		respondError(c, http.StatusConflict, "STAGING_LIMIT_REACHED", "Commit or cancel your pending uploads before uploading again")
	case errors.Is(err, services.ErrEmptyUpload):
		respondError(c, http.StatusBadRequest, "EMPTY_FILE", "The file contains no data rows")
	case errors.Is(err, services.ErrTooManyRows):
		respondError(c, http.StatusBadRequest, "TOO_MANY_ROWS", err.Error())
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetRequestID(c),
	})
}
