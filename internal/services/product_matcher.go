package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"bulk-upload-service/internal/metrics"
	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MatchType tags how a catalog candidate was found
type MatchType string

const (
	MatchTypeExact         MatchType = "exact"
	MatchTypeFuzzy         MatchType = "fuzzy"
	MatchTypeBrandCategory MatchType = "brand_category"
	MatchTypeKeyword       MatchType = "keyword"
	MatchTypeNone          MatchType = "none"
)

const (
	fuzzyFloorMargin   = 0.15
	boostVerified      = 0.15
	boostExact         = 0.10
	boostBrand         = 0.05
	boostCategory      = 0.05
	similarSearchLimit = 20
	localPoolLimit     = 200
	brandSearchLimit   = 20
	keywordSearchLimit = 50
	maxMergeHops       = 5
)

// CatalogSearcher is the catalog lookup surface the matcher needs
type CatalogSearcher interface {
	FindProductsByNormalizedName(ctx context.Context, normalizedName string) ([]models.BaseProduct, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.BaseProduct, error)
	SearchSimilarProducts(ctx context.Context, normalizedName string, floor float64, limit int) ([]repository.ScoredProduct, error)
	FindProductsByKeywords(ctx context.Context, words []string, limit int) ([]models.BaseProduct, error)
	FindProductsByBrandAndCategory(ctx context.Context, brand, category string, limit int) ([]models.BaseProduct, error)
}

// MatchQuery describes an uploaded product to look up
type MatchQuery struct {
	Name     string
	Brand    string
	Category string
}

// MatchResult is the matcher's decision for one query
type MatchResult struct {
	Matched       bool       `json:"matched"`
	ProductID     *uuid.UUID `json:"productId,omitempty"`
	Verified      bool       `json:"verified"`
	Confidence    int        `json:"confidence"`
	MatchType     MatchType  `json:"matchType"`
	Explanation   string     `json:"explanation"`
	WillCreateNew bool       `json:"willCreateNew"`
}

type matchCandidate struct {
	product    models.BaseProduct
	similarity float64
	matchType  MatchType
	score      float64
}

// ProductMatcher searches the catalog for an existing product matching an uploaded row
type ProductMatcher struct {
	catalog   CatalogSearcher
	threshold float64
	logger    *logrus.Entry

	// set once the database reports it has no similarity() function
	dbSimilarityDisabled atomic.Bool
}

// NewProductMatcher creates a matcher accepting candidates scoring at least threshold
func NewProductMatcher(catalog CatalogSearcher, threshold float64, logger *logrus.Logger) *ProductMatcher {
	return &ProductMatcher{
		catalog:   catalog,
		threshold: threshold,
		logger:    logger.WithField("component", "product_matcher"),
	}
}

// Match runs exact, fuzzy, brand+category and keyword lookups, stopping early on a verified exact hit.
// A best candidate below the threshold is reported as no match.
func (m *ProductMatcher) Match(ctx context.Context, q MatchQuery) (*MatchResult, error) {
	normalized := NormalizeProductName(q.Name)
	if normalized == "" {
		return m.record(noMatch("empty product name")), nil
	}

	candidates := make(map[uuid.UUID]*matchCandidate)

	// 1. Exact
	exact, err := m.catalog.FindProductsByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("exact match lookup: %w", err)
	}
	for i := range exact {
		product, err := m.resolveCanonical(ctx, &exact[i])
		if err != nil {
			return nil, err
		}
		if product == nil {
			continue
		}
		if product.IsVerified {
			id := product.ID
			explanation := fmt.Sprintf("exact match on verified product %q", product.Name)
			if product.ID != exact[i].ID {
				explanation += fmt.Sprintf(" (merged from %s)", exact[i].ID)
			}
			return m.record(&MatchResult{
				Matched:     true,
				ProductID:   &id,
				Verified:    true,
				Confidence:  100,
				MatchType:   MatchTypeExact,
				Explanation: explanation,
			}), nil
		}
		m.addCandidate(candidates, q, *product, 1.0, MatchTypeExact)
	}

	// 2. Fuzzy
	floor := m.threshold - fuzzyFloorMargin
	if err := m.fuzzyCandidates(ctx, candidates, q, normalized, floor); err != nil {
		return nil, err
	}

	// 3. Brand + category
	if strings.TrimSpace(q.Brand) != "" && strings.TrimSpace(q.Category) != "" {
		products, err := m.catalog.FindProductsByBrandAndCategory(ctx, q.Brand, q.Category, brandSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("brand match lookup: %w", err)
		}
		for _, p := range products {
			m.addCandidate(candidates, q, p, TrigramSimilarity(normalized, p.NormalizedName), MatchTypeBrandCategory)
		}
	}

	// 4. Keywords and aliases
	if words := significantWords(normalized, 3); len(words) > 0 {
		products, err := m.catalog.FindProductsByKeywords(ctx, words, keywordSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("keyword match lookup: %w", err)
		}
		for _, p := range products {
			if sharesKeyword(p, words) {
				m.addCandidate(candidates, q, p, TrigramSimilarity(normalized, p.NormalizedName), MatchTypeKeyword)
			}
		}
	}

	if len(candidates) == 0 {
		return m.record(noMatch("no catalog candidates")), nil
	}

	ranked := make([]*matchCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].product.IsVerified != ranked[j].product.IsVerified {
			return ranked[i].product.IsVerified
		}
		return ranked[i].product.ID.String() < ranked[j].product.ID.String()
	})

	best := ranked[0]
	if best.score < m.threshold && best.matchType != MatchTypeExact {
		return m.record(noMatch(fmt.Sprintf("best candidate %q (%s) scored %.2f, below threshold %.2f",
			best.product.Name, best.matchType, best.score, m.threshold))), nil
	}

	id := best.product.ID
	explanation := fmt.Sprintf("%s match on %q (similarity %.2f, score %.2f, verified %t)",
		best.matchType, best.product.Name, best.similarity, best.score, best.product.IsVerified)
	return m.record(&MatchResult{
		Matched:     true,
		ProductID:   &id,
		Verified:    best.product.IsVerified,
		Confidence:  int(math.Round(best.score * 100)),
		MatchType:   best.matchType,
		Explanation: explanation,
	}), nil
}

// fuzzyCandidates prefers the database similarity search and falls back to local trigrams
// over a keyword-filtered pool when the database cannot compute similarity.
func (m *ProductMatcher) fuzzyCandidates(ctx context.Context, candidates map[uuid.UUID]*matchCandidate, q MatchQuery, normalized string, floor float64) error {
	if !m.dbSimilarityDisabled.Load() {
		scored, err := m.catalog.SearchSimilarProducts(ctx, normalized, floor, similarSearchLimit)
		if err == nil {
			for _, sp := range scored {
				m.addCandidate(candidates, q, sp.BaseProduct, sp.Score, MatchTypeFuzzy)
			}
			return nil
		}
		if !errors.Is(err, repository.ErrSimilarityUnsupported) {
			return fmt.Errorf("similarity search: %w", err)
		}
		m.dbSimilarityDisabled.Store(true)
		m.logger.Warn("Database similarity search unavailable, switching to local trigram matching")
	}

	words := significantWords(normalized, 2)
	if len(words) == 0 {
		return nil
	}
	pool, err := m.catalog.FindProductsByKeywords(ctx, words, localPoolLimit)
	if err != nil {
		return fmt.Errorf("candidate pool lookup: %w", err)
	}
	for _, p := range pool {
		if sim := TrigramSimilarity(normalized, p.NormalizedName); sim >= floor {
			m.addCandidate(candidates, q, p, sim, MatchTypeFuzzy)
		}
	}
	return nil
}

// addCandidate scores p and keeps the higher-scoring entry per product ID
func (m *ProductMatcher) addCandidate(candidates map[uuid.UUID]*matchCandidate, q MatchQuery, p models.BaseProduct, similarity float64, matchType MatchType) {
	if !p.ApprovalStatus.IsActive() {
		return
	}

	score := similarity
	if p.IsVerified {
		score += boostVerified
	}
	if matchType == MatchTypeExact {
		score += boostExact
	}
	if q.Brand != "" && strings.EqualFold(strings.TrimSpace(q.Brand), strings.TrimSpace(p.Brand)) {
		score += boostBrand
	}
	if q.Category != "" && strings.EqualFold(strings.TrimSpace(q.Category), strings.TrimSpace(p.Category)) {
		score += boostCategory
	}
	score = math.Min(score, 1.0)

	if existing, ok := candidates[p.ID]; ok && existing.score >= score {
		return
	}
	candidates[p.ID] = &matchCandidate{product: p, similarity: similarity, matchType: matchType, score: score}
}

// resolveCanonical follows MERGED pointers to the surviving product.
// It returns nil for rejected products and broken merge chains.
func (m *ProductMatcher) resolveCanonical(ctx context.Context, p *models.BaseProduct) (*models.BaseProduct, error) {
	current := p
	for hop := 0; hop <= maxMergeHops; hop++ {
		switch current.ApprovalStatus {
		case models.ApprovalStatusMerged:
			if current.MergedIntoID == nil {
				m.logger.WithField("product_id", current.ID).Warn("Merged product has no replacement")
				return nil, nil
			}
			next, err := m.catalog.GetProductByID(ctx, *current.MergedIntoID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, nil
				}
				return nil, fmt.Errorf("resolve merged product: %w", err)
			}
			current = next
		case models.ApprovalStatusRejected:
			return nil, nil
		default:
			return current, nil
		}
	}
	m.logger.WithField("product_id", p.ID).Warn("Merge chain too long")
	return nil, nil
}

// sharesKeyword reports whether p's keywords or alias words intersect words
func sharesKeyword(p models.BaseProduct, words []string) bool {
	tokens := make(map[string]bool)
	for _, k := range p.Keywords.Data() {
		tokens[strings.ToLower(strings.TrimSpace(k))] = true
	}
	for _, alias := range p.Aliases.Data() {
		for _, w := range strings.Fields(NormalizeProductName(alias)) {
			tokens[w] = true
		}
	}
	for _, w := range words {
		if tokens[w] {
			return true
		}
	}
	return false
}

func noMatch(reason string) *MatchResult {
	return &MatchResult{
		MatchType:     MatchTypeNone,
		Explanation:   "no match: " + reason + "; a new catalog product will be created",
		WillCreateNew: true,
	}
}

func (m *ProductMatcher) record(r *MatchResult) *MatchResult {
	metrics.RecordMatch(string(r.MatchType), r.Matched)
	return r
}
