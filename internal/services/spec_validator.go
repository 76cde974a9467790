package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"bulk-upload-service/internal/models"
	"github.com/sirupsen/logrus"
)

// SpecValidationResult is the outcome of checking one row's attributes against its category
type SpecValidationResult struct {
	IsTech       bool
	RuleName     string
	Missing      []string
	Errors       []models.RowError
	Normalized   map[string]string
	TargetStatus models.ListingStatus
}

// SpecValidator decides which attributes a category requires and normalizes attribute values
type SpecValidator struct {
	rules  *SpecRuleBook
	logger *logrus.Entry

	patterns sync.Map // pattern -> *regexp.Regexp
}

// NewSpecValidator creates a validator backed by a rule book
func NewSpecValidator(rules *SpecRuleBook, logger *logrus.Logger) *SpecValidator {
	return &SpecValidator{
		rules:  rules,
		logger: logger.WithField("component", "spec_validator"),
	}
}

// Rules exposes the rule book for refresh
func (v *SpecValidator) Rules() *SpecRuleBook {
	return v.rules
}

// Validate normalizes attrs and checks them against the rule for category.
// Missing or invalid required attributes route the row to NEEDS_SPECS; they never block it.
func (v *SpecValidator) Validate(ctx context.Context, category string, attrs map[string]string) SpecValidationResult {
	// Keys are visited in order so the result never depends on map iteration.
	// A key that already is the canonical name wins over its aliases.
	rawKeys := make([]string, 0, len(attrs))
	for k := range attrs {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	normalized := make(map[string]string, len(attrs))
	exact := make(map[string]bool, len(attrs))
	for _, k := range rawKeys {
		val := attrs[k]
		key := CanonicalAttributeKey(k)
		if key == "" || strings.TrimSpace(val) == "" {
			continue
		}
		isExact := NormalizeAttributeKey(k) == key
		if _, seen := normalized[key]; seen && (exact[key] || !isExact) {
			continue
		}
		normalized[key] = NormalizeAttributeValue(key, val)
		exact[key] = isExact
	}

	result := SpecValidationResult{
		Missing:      []string{},
		Normalized:   normalized,
		TargetStatus: models.ListingStatusNeedsImages,
	}

	if !IsTechCategory(category) {
		return result
	}
	result.IsTech = true

	rule := v.rules.RuleFor(ctx, category)
	result.RuleName = rule.CategoryName

	required := make(map[string]bool)
	for _, key := range rule.Required() {
		required[key] = true
		if _, ok := normalized[key]; !ok {
			result.Missing = append(result.Missing, key)
		}
	}

	keys := make([]string, 0, len(normalized))
	for key := range normalized {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	invalidRequired := false
	for _, key := range keys {
		constraint, ok := rule.Constraint(key)
		if !ok {
			continue
		}
		if msg := v.checkConstraint(normalized[key], constraint); msg != "" {
			result.Errors = append(result.Errors, models.RowError{
				Field:   key,
				Kind:    models.ErrorKindSpecDeficiency,
				Code:    models.RowErrorInvalidSpec,
				Message: fmt.Sprintf("%s %s", rule.Label(key), msg),
			})
			if required[key] {
				invalidRequired = true
			}
		}
	}

	if len(result.Missing) > 0 || invalidRequired {
		result.TargetStatus = models.ListingStatusNeedsSpecs
	}
	return result
}

// checkConstraint returns a message describing why value fails c, or "" when it passes
func (v *SpecValidator) checkConstraint(value string, c models.AttributeConstraint) string {
	if len(c.Enum) > 0 {
		found := false
		for _, allowed := range c.Enum {
			if strings.EqualFold(allowed, value) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("must be one of %s, got %q", strings.Join(c.Enum, ", "), value)
		}
	}

	if c.Pattern != "" {
		re, err := v.compile(c.Pattern)
		if err != nil {
			v.logger.WithError(err).WithField("pattern", c.Pattern).Warn("Ignoring invalid spec rule pattern")
		} else if !re.MatchString(value) {
			return fmt.Sprintf("has an unrecognized format: %q", value)
		}
	}

	if c.Type == "number" || c.Min != nil || c.Max != nil {
		n, ok := leadingNumber(value)
		if !ok {
			return fmt.Sprintf("must be a number, got %q", value)
		}
		if c.Min != nil && n < *c.Min {
			return fmt.Sprintf("must be at least %s, got %q", formatNumber(*c.Min), value)
		}
		if c.Max != nil && n > *c.Max {
			return fmt.Sprintf("must be at most %s, got %q", formatNumber(*c.Max), value)
		}
	}
	return ""
}

func (v *SpecValidator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := v.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(pattern, re)
	return re, nil
}
