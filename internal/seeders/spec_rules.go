package seeders

import (
	"context"
	"fmt"

	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/services"
	"github.com/sirupsen/logrus"
)

// SpecRuleWriter stores spec rules
type SpecRuleWriter interface {
	UpsertSpecRule(ctx context.Context, rule *models.SpecRule) error
}

// SeedDefaultSpecRules creates or updates the built-in category spec rules.
// IDs are derived from the category name, so reseeding updates rows in place
// and never duplicates them.
func SeedDefaultSpecRules(ctx context.Context, repo SpecRuleWriter, logger *logrus.Logger) (int, error) {
	rules := services.DefaultSpecRules()

	for i := range rules {
		rule := rules[i]
		if err := repo.UpsertSpecRule(ctx, &rule); err != nil {
			logger.WithError(err).Errorf("Failed to seed spec rule %s", rule.CategoryName)
			return i, fmt.Errorf("seed spec rule %q: %w", rule.CategoryName, err)
		}
		logger.WithField("required", rule.Required()).Debugf("Seeded spec rule: %s", rule.CategoryName)
	}

	logger.Infof("Seeded %d default spec rules", len(rules))
	return len(rules), nil
}
