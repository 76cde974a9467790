package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"bulk-upload-service/internal/models"
	"github.com/shopspring/decimal"
)

// displayMarkup is the combined seller and platform fee applied to base prices
var displayMarkup = decimal.RequireFromString("1.0526")

// DisplayPrice returns the buyer-facing price for a base price, rounded to whole MWK
func DisplayPrice(basePrice decimal.Decimal) decimal.Decimal {
	return basePrice.Mul(displayMarkup).Round(0)
}

// RowFields holds the fixed columns of a raw row as trimmed text
type RowFields struct {
	Name        string
	Category    string
	Brand       string
	SKU         string
	BasePrice   string
	Stock       string
	Condition   string
	Description string
}

// RowAttribute is one label and value taken from attribute columns
type RowAttribute struct {
	Label string
	Value string
}

// ClassifiedRow is a raw row resolved to one of the known column layouts.
// Implementations are ElectronicsRow, GeneralRow and UnrecognizedRow.
type ClassifiedRow interface {
	Core() RowFields
	Attributes() []RowAttribute
	classified()
}

// ElectronicsRow carries attributes in "Spec: <Name>" columns
type ElectronicsRow struct {
	Fields RowFields
	Specs  []RowAttribute
}

func (r ElectronicsRow) Core() RowFields            { return r.Fields }
func (r ElectronicsRow) Attributes() []RowAttribute { return r.Specs }
func (ElectronicsRow) classified()                  {}

// GeneralRow carries attributes in numbered Label_n / Value_n pairs
type GeneralRow struct {
	Fields RowFields
	Pairs  []RowAttribute
}

func (r GeneralRow) Core() RowFields            { return r.Fields }
func (r GeneralRow) Attributes() []RowAttribute { return r.Pairs }
func (GeneralRow) classified()                  {}

// UnrecognizedRow has no attribute columns; its template follows from the category
type UnrecognizedRow struct {
	Fields RowFields
}

func (r UnrecognizedRow) Core() RowFields          { return r.Fields }
func (UnrecognizedRow) Attributes() []RowAttribute { return nil }
func (UnrecognizedRow) classified()                {}

// ClassifyRow inspects the column keys of a raw row once and returns its layout
func ClassifyRow(raw models.RawRow) ClassifiedRow {
	fields := RowFields{
		Name:        cellString(raw[models.ColumnProductName]),
		Category:    cellString(raw[models.ColumnCategory]),
		Brand:       cellString(raw[models.ColumnBrand]),
		SKU:         cellString(raw[models.ColumnSKU]),
		BasePrice:   cellString(raw[models.ColumnBasePrice]),
		Stock:       cellString(raw[models.ColumnStockQuantity]),
		Condition:   cellString(raw[models.ColumnCondition]),
		Description: cellString(raw[models.ColumnDescription]),
	}

	var specKeys []string
	pairIndexes := make(map[int]bool)
	for key := range raw {
		if strings.HasPrefix(key, models.SpecColumnPrefix) {
			specKeys = append(specKeys, key)
			continue
		}
		if n, ok := pairIndex(key, models.LabelColumnPrefix); ok {
			pairIndexes[n] = true
		} else if n, ok := pairIndex(key, models.ValueColumnPrefix); ok {
			pairIndexes[n] = true
		}
	}

	if len(specKeys) > 0 {
		sort.Strings(specKeys)
		row := ElectronicsRow{Fields: fields}
		for _, key := range specKeys {
			label := strings.TrimSpace(strings.TrimPrefix(key, models.SpecColumnPrefix))
			value := cellString(raw[key])
			if label == "" || value == "" {
				continue
			}
			row.Specs = append(row.Specs, RowAttribute{Label: label, Value: value})
		}
		return row
	}

	if len(pairIndexes) > 0 {
		indexes := make([]int, 0, len(pairIndexes))
		for n := range pairIndexes {
			indexes = append(indexes, n)
		}
		sort.Ints(indexes)

		row := GeneralRow{Fields: fields}
		for _, n := range indexes {
			label := cellString(raw[fmt.Sprintf("%s%d", models.LabelColumnPrefix, n)])
			value := cellString(raw[fmt.Sprintf("%s%d", models.ValueColumnPrefix, n)])
			if label == "" || value == "" {
				continue
			}
			row.Pairs = append(row.Pairs, RowAttribute{Label: label, Value: value})
		}
		return row
	}

	return UnrecognizedRow{Fields: fields}
}

func pairIndex(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// TemplateOf resolves the template type of a classified row
func TemplateOf(row ClassifiedRow) models.TemplateType {
	switch r := row.(type) {
	case ElectronicsRow:
		return models.TemplateElectronics
	case GeneralRow:
		return models.TemplateGeneral
	default:
		if IsTechCategory(r.Core().Category) {
			return models.TemplateElectronics
		}
		return models.TemplateGeneral
	}
}

// ParsedRow is a typed candidate row ready for validation
type ParsedRow struct {
	RowNumber          int
	TemplateType       models.TemplateType
	Name               string
	NormalizedName     string
	Category           string
	Brand              string
	SKU                string
	BasePrice          decimal.Decimal
	DisplayPrice       decimal.Decimal
	StockQuantity      int
	Condition          models.Condition
	ConditionDefaulted bool
	Description        string
	Attributes         map[string]string
}

// ParseRow turns one raw row into a parsed row, or into the list of field errors that prevent it.
// Invalid conditions are not errors: they fall back to NEW.
func ParseRow(rowNumber int, raw models.RawRow) (*ParsedRow, []models.RowError) {
	classified := ClassifyRow(raw)
	fields := classified.Core()

	var rowErrors []models.RowError
	addError := func(field, code, message string) {
		rowErrors = append(rowErrors, models.RowError{
			RowNumber: rowNumber,
			Field:     field,
			Kind:      models.ErrorKindParse,
			Code:      code,
			Message:   message,
		})
	}

	if fields.Name == "" {
		addError("name", models.RowErrorRequired, "Product name is required")
	}

	var basePrice decimal.Decimal
	if fields.BasePrice == "" {
		addError("price", models.RowErrorRequired, "Base price is required")
	} else if price, err := parseBasePrice(fields.BasePrice); err != nil {
		addError("price", models.RowErrorInvalid, fmt.Sprintf("Base price must be a positive number, got %q", fields.BasePrice))
	} else {
		basePrice = price
	}

	var stock int
	if fields.Stock == "" {
		addError("stock", models.RowErrorRequired, "Stock quantity is required")
	} else if qty, err := parseStock(fields.Stock); err != nil {
		addError("stock", models.RowErrorInvalid, fmt.Sprintf("Stock quantity must be a whole number from 0 to %d, got %q", maxStock, fields.Stock))
	} else {
		stock = qty
	}

	if len(rowErrors) > 0 {
		return nil, rowErrors
	}

	condition, defaulted := parseCondition(fields.Condition)

	attributes := make(map[string]string)
	for _, attr := range classified.Attributes() {
		key := NormalizeAttributeKey(attr.Label)
		if key == "" {
			continue
		}
		attributes[key] = attr.Value
	}

	return &ParsedRow{
		RowNumber:          rowNumber,
		TemplateType:       TemplateOf(classified),
		Name:               fields.Name,
		NormalizedName:     NormalizeProductName(fields.Name),
		Category:           fields.Category,
		Brand:              fields.Brand,
		SKU:                fields.SKU,
		BasePrice:          basePrice,
		DisplayPrice:       DisplayPrice(basePrice),
		StockQuantity:      stock,
		Condition:          condition,
		ConditionDefaulted: defaulted,
		Description:        fields.Description,
		Attributes:         attributes,
	}, nil
}

var priceCleaner = strings.NewReplacer("MWK", "", "MK", "", ",", "", " ", "")

func parseBasePrice(value string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(priceCleaner.Replace(strings.ToUpper(value)))
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s is not positive", price)
	}
	return price, nil
}

// maxStock bounds stock so it fits the listing's integer column
const maxStock = math.MaxInt32

func parseStock(value string) (int, error) {
	cleaned := strings.ReplaceAll(value, ",", "")
	if n, err := strconv.Atoi(cleaned); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("stock %d is negative", n)
		}
		if n > maxStock {
			return 0, fmt.Errorf("stock %d exceeds %d", n, maxStock)
		}
		return n, nil
	}
	// Spreadsheet numbers often arrive as "5.0"
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() || d.IsNegative() {
		return 0, fmt.Errorf("stock %s is not a non-negative whole number", d)
	}
	if d.GreaterThan(decimal.NewFromInt(maxStock)) {
		return 0, fmt.Errorf("stock %s exceeds %d", d, maxStock)
	}
	return int(d.IntPart()), nil
}

var conditionAliases = map[string]models.Condition{
	"NEW":         models.ConditionNew,
	"BRAND_NEW":   models.ConditionNew,
	"LIKE_NEW":    models.ConditionLikeNew,
	"USED":        models.ConditionUsed,
	"REFURBISHED": models.ConditionRefurbished,
}

// parseCondition maps free text onto a condition, reporting whether it fell back to NEW
func parseCondition(value string) (models.Condition, bool) {
	key := strings.ToUpper(strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_"))
	if c, ok := conditionAliases[key]; ok {
		return c, false
	}
	return models.ConditionNew, true
}
