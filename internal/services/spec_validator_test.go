package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeRuleSource serves a fixed rule set and counts loads
type fakeRuleSource struct {
	rules      []models.SpecRule
	categories []models.Category
	err        error
	loads      int
}

func (f *fakeRuleSource) ListActiveSpecRules(ctx context.Context) ([]models.SpecRule, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func (f *fakeRuleSource) ListCategories(ctx context.Context) ([]models.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.categories, nil
}

func storedRule(name string, required ...string) models.SpecRule {
	return models.SpecRule{
		ID:           uuid.New(),
		CategoryName: name,
		RequiredKeys: datatypes.NewJSONType(required),
		OptionalKeys: datatypes.NewJSONType([]string{}),
		Labels:       datatypes.NewJSONType(map[string]string{}),
		Constraints:  datatypes.NewJSONType(map[string]models.AttributeConstraint{}),
		IsActive:     true,
	}
}

func TestIsTechCategory(t *testing.T) {
	tests := map[string]bool{
		"Mobile Phones":         true,
		"Smartphones & Tablets": true,
		"Laptops":               true,
		"Smart TVs":             true,
		"Televisions":           true,
		"Audio":                 true,
		"Consumer Electronics":  true,
		"Phone":                 true,
		"Mobile":                true,
		"Headphones":            true,
		"Fashion":               false,
		"Audiobooks":            false,
		"Phone Cases":           false,
		"Laptop Bags":           false,
		"Televisionary Art":     false,
		"Activewear":            false,
		"Kitchen & Dining":      false,
		"":                      false,
	}

	for category, expected := range tests {
		t.Run(category, func(t *testing.T) {
			assert.Equal(t, expected, IsTechCategory(category))
		})
	}
}

func TestSpecValidator_MissingRequiredSpecs(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Smartphones & Tablets", map[string]string{
		"screen_size": "6.8 inches",
		"color":       "Titanium Black",
	})

	assert.True(t, result.IsTech)
	assert.Equal(t, "Phones & Tablets", result.RuleName)
	assert.Equal(t, []string{AttrRAM, AttrStorage}, result.Missing)
	assert.Empty(t, result.Errors)
	assert.Equal(t, `6.8"`, result.Normalized[AttrScreenSize])
	assert.Equal(t, models.ListingStatusNeedsSpecs, result.TargetStatus)
}

func TestSpecValidator_CompleteSpecs(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Mobile Phones", map[string]string{
		"memory":       "8 gb",
		"rom":          "256",
		"display_size": "6.5 inch",
		"battery":      "5,000 mAh",
	})

	assert.True(t, result.IsTech)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Errors)
	assert.Equal(t, map[string]string{
		AttrRAM:        "8GB",
		AttrStorage:    "256GB",
		AttrScreenSize: `6.5"`,
		AttrBattery:    "5000mAh",
	}, result.Normalized)
	assert.Equal(t, models.ListingStatusNeedsImages, result.TargetStatus)
}

func TestSpecValidator_CanonicalKeyWinsOverAlias(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	for i := 0; i < 20; i++ {
		result := validator.Validate(context.Background(), "Mobile Phones", map[string]string{
			"memory":       "4GB",
			"ram":          "8GB",
			"ram_memory":   "6GB",
			"rom":          "128GB",
			"storage":      "256GB",
			"display_size": "6.5",
			"screen":       "6.1",
		})

		assert.Equal(t, "8GB", result.Normalized[AttrRAM])
		assert.Equal(t, "256GB", result.Normalized[AttrStorage])
		assert.Equal(t, `6.5"`, result.Normalized[AttrScreenSize], "aliases resolve in key order")
	}
}

func TestSpecValidator_InvalidRequiredValue(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Televisions", map[string]string{
		"screen_size": "200 inches",
		"resolution":  "Full HD",
	})

	assert.Equal(t, "TVs & Monitors", result.RuleName)
	assert.Empty(t, result.Missing)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, AttrScreenSize, result.Errors[0].Field)
	assert.Equal(t, models.RowErrorInvalidSpec, result.Errors[0].Code)
	assert.Equal(t, models.ErrorKindSpecDeficiency, result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Message, "Screen Size must be at most 120")
	assert.Equal(t, models.ListingStatusNeedsSpecs, result.TargetStatus)
}

func TestSpecValidator_InvalidOptionalValueDoesNotBlock(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Phones", map[string]string{
		"ram":         "4GB",
		"storage":     "64GB",
		"screen_size": "6.1",
		"battery":     "10",
	})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, AttrBattery, result.Errors[0].Field)
	assert.Equal(t, models.ListingStatusNeedsImages, result.TargetStatus)
}

func TestSpecValidator_NonTechCategory(t *testing.T) {
	validator := NewSpecValidator(NewSpecRuleBook(nil, 0, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Fashion", map[string]string{
		"Material": "Cotton",
		"size":     " ",
	})

	assert.False(t, result.IsTech)
	assert.Empty(t, result.RuleName)
	assert.NotNil(t, result.Missing)
	assert.Empty(t, result.Missing)
	assert.Equal(t, map[string]string{"material": "Cotton"}, result.Normalized)
	assert.Equal(t, models.ListingStatusNeedsImages, result.TargetStatus)
}

func TestSpecRuleBook_Lookup(t *testing.T) {
	gadgetsID := uuid.New()
	gadgetRule := storedRule("Gadget Rules", AttrConnectivity)
	gadgetRule.CategoryID = &gadgetsID

	source := &fakeRuleSource{
		rules: []models.SpecRule{
			storedRule("Feature Phones", AttrBattery),
			gadgetRule,
		},
		categories: []models.Category{{ID: gadgetsID, Name: "Smart Gadgets"}},
	}
	book := NewSpecRuleBook(source, time.Hour, quietLogger())
	ctx := context.Background()

	assert.Equal(t, "Gadget Rules", book.RuleFor(ctx, "smart gadgets").CategoryName, "by category ID")
	assert.Equal(t, "Feature Phones", book.RuleFor(ctx, "Feature Phones").CategoryName, "by exact name")
	assert.Equal(t, "Feature Phones", book.RuleFor(ctx, "Budget Feature Phones").CategoryName, "by partial name")
	assert.Equal(t, "Laptops & Computers", book.RuleFor(ctx, "Laptops").CategoryName, "by built-in keywords")
	assert.Equal(t, "Electronics", book.RuleFor(ctx, "Something Else").CategoryName, "generic fallback")

	assert.Equal(t, 1, source.loads, "lookups within the TTL reuse the snapshot")
}

func TestSpecRuleBook_RefreshFailureKeepsSnapshot(t *testing.T) {
	source := &fakeRuleSource{rules: []models.SpecRule{storedRule("Feature Phones", AttrBattery)}}
	book := NewSpecRuleBook(source, time.Hour, quietLogger())
	ctx := context.Background()

	require.NoError(t, book.Refresh(ctx))
	assert.Equal(t, "Feature Phones", book.RuleFor(ctx, "Feature Phones").CategoryName)

	source.err = errors.New("connection refused")
	assert.Error(t, book.Refresh(ctx))

	book.Invalidate()
	assert.Equal(t, "Feature Phones", book.RuleFor(ctx, "Feature Phones").CategoryName)
}

func TestSpecRuleBook_UnreachableSourceUsesDefaults(t *testing.T) {
	source := &fakeRuleSource{err: errors.New("relation \"spec_rules\" does not exist")}
	validator := NewSpecValidator(NewSpecRuleBook(source, time.Hour, quietLogger()), quietLogger())

	result := validator.Validate(context.Background(), "Laptops", map[string]string{"ram": "8GB"})

	assert.Equal(t, "Laptops & Computers", result.RuleName)
	assert.Equal(t, []string{AttrStorage, AttrProcessor, AttrScreenSize}, result.Missing)
	assert.Equal(t, models.ListingStatusNeedsSpecs, result.TargetStatus)
}

func TestDefaultSpecRules(t *testing.T) {
	rules := DefaultSpecRules()
	require.NotEmpty(t, rules)

	seen := make(map[uuid.UUID]bool)
	for _, rule := range rules {
		assert.Equal(t, DefaultSpecRuleID(rule.CategoryName), rule.ID)
		assert.False(t, seen[rule.ID], "rule IDs must be unique")
		seen[rule.ID] = true
		assert.NotNil(t, rule.Required())
	}
}
