package repository

import (
	"context"
	"fmt"
	"strings"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var activeApprovalStatuses = []models.ApprovalStatus{
	models.ApprovalStatusPending,
	models.ApprovalStatusApproved,
}

// --- Product Methods ---

// FindProductsByNormalizedName returns every non-rejected product with the exact normalized name.
// MERGED products are included so callers can follow them to their replacement.
func (r *BulkUploadRepository) FindProductsByNormalizedName(ctx context.Context, normalizedName string) ([]models.BaseProduct, error) {
	var products []models.BaseProduct
	err := r.db.WithContext(ctx).
		Where("normalized_name = ? AND approval_status <> ?", normalizedName, models.ApprovalStatusRejected).
		Order("created_at ASC").
		Find(&products).Error
	return products, err
}

// GetProductByID retrieves a catalog product by ID
func (r *BulkUploadRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*models.BaseProduct, error) {
	var product models.BaseProduct
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

// SearchSimilarProducts ranks active products with the pg_trgm similarity() function.
// It returns ErrSimilarityUnsupported when the database has no such function.
func (r *BulkUploadRepository) SearchSimilarProducts(ctx context.Context, normalizedName string, floor float64, limit int) ([]ScoredProduct, error) {
	var results []ScoredProduct
	err := r.db.WithContext(ctx).
		Model(&models.BaseProduct{}).
		Select("base_products.*, similarity(normalized_name, ?) AS score", normalizedName).
		Where("approval_status IN ?", activeApprovalStatuses).
		Where("similarity(normalized_name, ?) >= ?", normalizedName, floor).
		Order("score DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		if isUndefinedFunction(err) {
			return nil, ErrSimilarityUnsupported
		}
		return nil, err
	}
	return results, nil
}

// FindProductsByKeywords returns active products whose name, keywords or aliases mention any of words
func (r *BulkUploadRepository) FindProductsByKeywords(ctx context.Context, words []string, limit int) ([]models.BaseProduct, error) {
	if len(words) == 0 {
		return nil, nil
	}

	match := r.db.Session(&gorm.Session{NewDB: true})
	for i, word := range words {
		word = strings.ToLower(word)
		nameLike := "%" + word + "%"
		keywordLike := fmt.Sprintf("%%%q%%", word)
		if i == 0 {
			match = match.Where("normalized_name LIKE ?", nameLike)
		} else {
			match = match.Or("normalized_name LIKE ?", nameLike)
		}
		match = match.
			Or("CAST(keywords AS TEXT) LIKE ?", keywordLike).
			Or("CAST(aliases AS TEXT) LIKE ?", nameLike)
	}

	var products []models.BaseProduct
	err := r.db.WithContext(ctx).
		Where("approval_status IN ?", activeApprovalStatuses).
		Where(match).
		Order("is_verified DESC, created_at ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// FindProductsByBrandAndCategory returns active products sharing brand and category, case-insensitively
func (r *BulkUploadRepository) FindProductsByBrandAndCategory(ctx context.Context, brand, category string, limit int) ([]models.BaseProduct, error) {
	var products []models.BaseProduct
	err := r.db.WithContext(ctx).
		Where("approval_status IN ?", activeApprovalStatuses).
		Where("LOWER(brand) = ? AND LOWER(category) = ?", strings.ToLower(brand), strings.ToLower(category)).
		Order("is_verified DESC, created_at ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// CreateProduct creates a catalog product
func (r *BulkUploadRepository) CreateProduct(ctx context.Context, product *models.BaseProduct) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// --- Listing Methods ---

// ListingNameExists checks if the shop already lists a product with the normalized name
func (r *BulkUploadRepository) ListingNameExists(ctx context.Context, shopID, normalizedName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Listing{}).
		Where("shop_id = ? AND normalized_name = ?", shopID, normalizedName).
		Count(&count).Error
	return count > 0, err
}

// ListingSKUExists checks if the SKU is already used in the shop
func (r *BulkUploadRepository) ListingSKUExists(ctx context.Context, shopID, sku string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Listing{}).
		Where("shop_id = ? AND sku = ?", shopID, sku).
		Count(&count).Error
	return count > 0, err
}

// CreateListing creates a listing; a taken SKU yields ErrDuplicate
func (r *BulkUploadRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// --- Shop Methods ---

// GetShop retrieves a shop by ID
func (r *BulkUploadRepository) GetShop(ctx context.Context, shopID string) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", shopID).First(&shop).Error; err != nil {
		return nil, notFound(err)
	}
	return &shop, nil
}

// NextSKUSequence atomically increments and returns the shop's counter for dateCode
func (r *BulkUploadRepository) NextSKUSequence(ctx context.Context, shopID, dateCode string) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SKUSequence{}).
			Where("shop_id = ? AND date_code = ?", shopID, dateCode).
			UpdateColumn("last_value", gorm.Expr("last_value + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			seq := models.SKUSequence{ShopID: shopID, DateCode: dateCode, LastValue: 1}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}

		var seq models.SKUSequence
		if err := tx.Where("shop_id = ? AND date_code = ?", shopID, dateCode).First(&seq).Error; err != nil {
			return err
		}
		next = seq.LastValue
		return nil
	})
	return next, err
}
