package repository

import (
	"context"

	"bulk-upload-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SpecRuleRepository reads category spec rules and categories
type SpecRuleRepository struct {
	db *gorm.DB
}

// NewSpecRuleRepository creates a new SpecRuleRepository
func NewSpecRuleRepository(db *gorm.DB) *SpecRuleRepository {
	return &SpecRuleRepository{db: db}
}

// ListActiveSpecRules returns all active rules
func (r *SpecRuleRepository) ListActiveSpecRules(ctx context.Context) ([]models.SpecRule, error) {
	var rules []models.SpecRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("category_name ASC").
		Find(&rules).Error
	return rules, err
}

// ListCategories returns every category
func (r *SpecRuleRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

// CountSpecRules returns the number of stored rules
func (r *SpecRuleRepository) CountSpecRules(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SpecRule{}).Count(&count).Error
	return count, err
}

// UpsertSpecRule creates a rule or refreshes the stored definition for its ID
func (r *SpecRuleRepository) UpsertSpecRule(ctx context.Context, rule *models.SpecRule) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"category_name", "required_keys", "optional_keys", "labels", "constraints", "is_active", "updated_at"}),
	}).Create(rule).Error
}
