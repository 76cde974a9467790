package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// techKeywords decide whether a category is a tech category
var techKeywords = []string{
	"mobile phone", "phone", "smartphone", "laptop", "notebook", "computer",
	"tablet", "tv", "television", "camera", "smartwatch", "wearable",
	"headphone", "earbuds", "speaker", "audio", "monitor", "console",
	"gaming", "electronics",
}

// accessoryWords mark categories that sell add-ons for devices rather than the devices
var accessoryWords = map[string]bool{
	"accessory": true, "accessories": true, "case": true, "cases": true,
	"cover": true, "covers": true, "charger": true, "chargers": true,
	"cable": true, "cables": true, "protector": true, "protectors": true,
	"strap": true, "straps": true, "holder": true, "holders": true,
	"bag": true, "bags": true, "sleeve": true, "sleeves": true,
	"skin": true, "skins": true, "mount": true, "mounts": true,
}

// IsTechCategory reports whether a category name contains, or is contained by, a tech keyword.
// Keywords match whole words, plurals included, so "tv" matches "Smart TVs" but not "Audiobooks".
// Accessory categories such as "Phone Cases" are not tech.
func IsTechCategory(category string) bool {
	cat := NormalizeProductName(category)
	if cat == "" {
		return false
	}
	for _, word := range strings.Fields(cat) {
		if accessoryWords[word] {
			return false
		}
	}
	for _, kw := range techKeywords {
		if matchesKeyword(cat, kw) {
			return true
		}
	}
	return false
}

// matchesKeyword reports whether the normalized category holds kw as whole words,
// or the whole category is one of the words of kw ("mobile" for "mobile phone").
func matchesKeyword(cat, kw string) bool {
	if strings.Contains(" "+kw+" ", " "+cat+" ") {
		return true
	}
	words := strings.Fields(cat)
	kwWords := strings.Fields(kw)
	for start := 0; start+len(kwWords) <= len(words); start++ {
		matched := true
		for i, kwWord := range kwWords {
			if !sameWord(words[start+i], kwWord) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// sameWord compares a word with a keyword word, accepting the plural forms of the keyword
func sameWord(word, kw string) bool {
	return word == kw || word == kw+"s" || word == kw+"es"
}

func floatPtr(f float64) *float64 { return &f }

var defaultLabels = map[string]string{
	AttrRAM:           "RAM",
	AttrStorage:       "Storage",
	AttrScreenSize:    "Screen Size",
	AttrBattery:       "Battery",
	AttrCamera:        "Camera",
	AttrFrontCamera:   "Front Camera",
	AttrMegapixels:    "Megapixels",
	AttrResolution:    "Resolution",
	AttrProcessor:     "Processor",
	AttrColor:         "Color",
	AttrOS:            "Operating System",
	AttrCompatibility: "Compatibility",
	AttrConnectivity:  "Connectivity",
}

var defaultConstraints = map[string]models.AttributeConstraint{
	AttrRAM:         {Type: "string", Pattern: `^\d+(\.\d+)?(MB|GB)$`},
	AttrStorage:     {Type: "string", Pattern: `^\d+(\.\d+)?(GB|TB)$`},
	AttrScreenSize:  {Type: "number", Pattern: `^\d+(\.\d+)?"$`, Min: floatPtr(1), Max: floatPtr(120)},
	AttrBattery:     {Type: "number", Pattern: `^\d+mAh$`, Min: floatPtr(50), Max: floatPtr(50000)},
	AttrCamera:      {Type: "string", Pattern: `^\d+(\.\d+)?MP(\+\d+(\.\d+)?MP)*$`},
	AttrFrontCamera: {Type: "string", Pattern: `^\d+(\.\d+)?MP(\+\d+(\.\d+)?MP)*$`},
	AttrMegapixels:  {Type: "string", Pattern: `^\d+(\.\d+)?MP(\+\d+(\.\d+)?MP)*$`},
	AttrResolution:  {Type: "string", Enum: []string{"8K", "4K", "1440p", "1080p", "720p"}},
}

type defaultRuleDef struct {
	name     string
	keywords []string
	required []string
	optional []string
}

// defaultRuleDefs are checked in order; the first keyword hit wins
var defaultRuleDefs = []defaultRuleDef{
	{
		name:     "Phones & Tablets",
		keywords: []string{"mobile phone", "phone", "smartphone", "tablet"},
		required: []string{AttrRAM, AttrStorage, AttrScreenSize},
		optional: []string{AttrBattery, AttrCamera, AttrColor, AttrProcessor, AttrOS},
	},
	{
		name:     "Laptops & Computers",
		keywords: []string{"laptop", "notebook", "computer", "macbook"},
		required: []string{AttrRAM, AttrStorage, AttrProcessor, AttrScreenSize},
		optional: []string{AttrOS, AttrColor, AttrBattery},
	},
	{
		name:     "TVs & Monitors",
		keywords: []string{"tv", "television", "monitor"},
		required: []string{AttrScreenSize, AttrResolution},
		optional: []string{AttrConnectivity, AttrOS},
	},
	{
		name:     "Cameras",
		keywords: []string{"camera"},
		required: []string{AttrMegapixels},
		optional: []string{AttrStorage, AttrBattery, AttrColor},
	},
	{
		name:     "Wearables",
		keywords: []string{"smartwatch", "wearable", "fitness tracker"},
		required: []string{AttrCompatibility},
		optional: []string{AttrBattery, AttrScreenSize, AttrColor, AttrConnectivity},
	},
	{
		name:     "Audio",
		keywords: []string{"headphone", "earbuds", "earphone", "speaker", "audio"},
		required: []string{AttrConnectivity},
		optional: []string{AttrBattery, AttrColor},
	},
	{
		name:     "Gaming Consoles",
		keywords: []string{"console", "gaming"},
		required: []string{AttrStorage},
		optional: []string{AttrResolution, AttrColor},
	},
	{
		name:     "Electronics",
		keywords: []string{"electronics"},
		optional: []string{AttrColor, AttrConnectivity},
	},
}

// DefaultSpecRuleID returns the stable ID of a built-in rule so seeding is idempotent
func DefaultSpecRuleID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("bulk-upload/spec-rule/"+strings.ToLower(name)))
}

func buildDefaultRule(def defaultRuleDef) models.SpecRule {
	labels := make(map[string]string)
	constraints := make(map[string]models.AttributeConstraint)
	for _, key := range append(append([]string{}, def.required...), def.optional...) {
		if l, ok := defaultLabels[key]; ok {
			labels[key] = l
		}
		if c, ok := defaultConstraints[key]; ok {
			constraints[key] = c
		}
	}
	required := def.required
	if required == nil {
		required = []string{}
	}
	return models.SpecRule{
		ID:           DefaultSpecRuleID(def.name),
		CategoryName: def.name,
		RequiredKeys: datatypes.NewJSONType(required),
		OptionalKeys: datatypes.NewJSONType(def.optional),
		Labels:       datatypes.NewJSONType(labels),
		Constraints:  datatypes.NewJSONType(constraints),
		IsActive:     true,
	}
}

// DefaultSpecRules returns the built-in rules used when the rule table has nothing better
func DefaultSpecRules() []models.SpecRule {
	rules := make([]models.SpecRule, 0, len(defaultRuleDefs))
	for _, def := range defaultRuleDefs {
		rules = append(rules, buildDefaultRule(def))
	}
	return rules
}

var builtinRules = DefaultSpecRules()

// defaultRuleFor returns the built-in rule whose keywords appear in the category
func defaultRuleFor(category string) *models.SpecRule {
	cat := NormalizeProductName(category)
	for i, def := range defaultRuleDefs {
		for _, kw := range def.keywords {
			if matchesKeyword(cat, kw) {
				return &builtinRules[i]
			}
		}
	}
	return &builtinRules[len(builtinRules)-1]
}

// SpecRuleSource loads stored spec rules and categories
type SpecRuleSource interface {
	ListActiveSpecRules(ctx context.Context) ([]models.SpecRule, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type ruleSnapshot struct {
	byCategoryID map[uuid.UUID]*models.SpecRule
	byName       map[string]*models.SpecRule
	categoryIDs  map[string]uuid.UUID
	rules        []*models.SpecRule
}

func newRuleSnapshot(rules []models.SpecRule, categories []models.Category) *ruleSnapshot {
	snap := &ruleSnapshot{
		byCategoryID: make(map[uuid.UUID]*models.SpecRule),
		byName:       make(map[string]*models.SpecRule),
		categoryIDs:  make(map[string]uuid.UUID),
	}
	for i := range rules {
		rule := &rules[i]
		snap.rules = append(snap.rules, rule)
		if rule.CategoryID != nil {
			snap.byCategoryID[*rule.CategoryID] = rule
		}
		snap.byName[strings.ToLower(strings.TrimSpace(rule.CategoryName))] = rule
	}
	for _, c := range categories {
		snap.categoryIDs[strings.ToLower(strings.TrimSpace(c.Name))] = c.ID
	}
	return snap
}

// ruleLoadRetry bounds how often a failing rule table is retried
const ruleLoadRetry = 30 * time.Second

// SpecRuleBook is a time-boxed cache of category spec rules.
// Lookups fall back to the built-in defaults when the table is empty or unreachable.
type SpecRuleBook struct {
	source SpecRuleSource
	ttl    time.Duration
	logger *logrus.Entry
	now    func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	snapshot  *ruleSnapshot
	expiresAt time.Time
}

// NewSpecRuleBook creates a rule book over source; a nil source serves only the defaults
func NewSpecRuleBook(source SpecRuleSource, ttl time.Duration, logger *logrus.Logger) *SpecRuleBook {
	return &SpecRuleBook{
		source: source,
		ttl:    ttl,
		logger: logger.WithField("component", "spec_rules"),
		now:    time.Now,
	}
}

// RuleFor resolves the rule of a category: by category ID, by exact name, by partial name,
// then by built-in keyword defaults.
func (b *SpecRuleBook) RuleFor(ctx context.Context, category string) *models.SpecRule {
	key := strings.ToLower(strings.TrimSpace(category))
	snap := b.current(ctx)

	if snap != nil && key != "" {
		if id, ok := snap.categoryIDs[key]; ok {
			if rule, ok := snap.byCategoryID[id]; ok {
				return rule
			}
		}
		if rule, ok := snap.byName[key]; ok {
			return rule
		}

		var best *models.SpecRule
		for _, rule := range snap.rules {
			name := strings.ToLower(strings.TrimSpace(rule.CategoryName))
			if name == "" {
				continue
			}
			if strings.Contains(key, name) || strings.Contains(name, key) {
				if best == nil || len(name) > len(best.CategoryName) {
					best = rule
				}
			}
		}
		if best != nil {
			return best
		}
	}

	return defaultRuleFor(category)
}

// Refresh reloads the rules now, replacing the cached snapshot on success
func (b *SpecRuleBook) Refresh(ctx context.Context) error {
	_, err, _ := b.group.Do("refresh", func() (interface{}, error) {
		return nil, b.load(ctx)
	})
	return err
}

// Invalidate drops the cached snapshot so the next lookup reloads it
func (b *SpecRuleBook) Invalidate() {
	b.mu.Lock()
	b.expiresAt = time.Time{}
	b.mu.Unlock()
}

func (b *SpecRuleBook) current(ctx context.Context) *ruleSnapshot {
	b.mu.RLock()
	snap, fresh := b.snapshot, b.now().Before(b.expiresAt)
	b.mu.RUnlock()
	if fresh || b.source == nil {
		return snap
	}

	if err := b.Refresh(ctx); err != nil {
		b.logger.WithError(err).Warn("Failed to load spec rules, using built-in defaults")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

func (b *SpecRuleBook) load(ctx context.Context) error {
	if b.source == nil {
		return nil
	}

	rules, err := b.source.ListActiveSpecRules(ctx)
	if err == nil {
		var categories []models.Category
		categories, err = b.source.ListCategories(ctx)
		if err == nil {
			b.mu.Lock()
			b.snapshot = newRuleSnapshot(rules, categories)
			b.expiresAt = b.now().Add(b.ttl)
			b.mu.Unlock()
			b.logger.WithField("rules", len(rules)).Debug("Spec rules loaded")
			return nil
		}
	}

	// Keep serving the last snapshot and retry shortly
	b.mu.Lock()
	b.expiresAt = b.now().Add(ruleLoadRetry)
	b.mu.Unlock()
	return err
}
