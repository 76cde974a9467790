package services

import (
	"testing"

	"bulk-upload-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayPrice(t *testing.T) {
	tests := []struct {
		base     int64
		expected string
	}{
		{1350000, "1421010"},
		{100000, "105260"},
		{1, "1"},
		{8500, "8947"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, DisplayPrice(decimal.NewFromInt(tt.base)).String())
		})
	}
}

func TestParseRow_ValidElectronicsRow(t *testing.T) {
	raw := models.RawRow{
		models.ColumnProductName:   "Samsung Galaxy S24 Ultra",
		models.ColumnCategory:      "Smartphones & Tablets",
		models.ColumnBrand:         "Samsung",
		models.ColumnBasePrice:     "MWK 1,350,000",
		models.ColumnStockQuantity: "5.0",
		models.ColumnCondition:     "brand new",
		"Spec: Screen Size":        "6.8 inches",
		"Spec: Color":              "Titanium Black",
	}

	parsed, rowErrors := ParseRow(3, raw)

	require.Empty(t, rowErrors)
	require.NotNil(t, parsed)
	assert.Equal(t, 3, parsed.RowNumber)
	assert.Equal(t, models.TemplateElectronics, parsed.TemplateType)
	assert.Equal(t, "Samsung Galaxy S24 Ultra", parsed.Name)
	assert.Equal(t, "samsung galaxy s24 ultra", parsed.NormalizedName)
	assert.True(t, parsed.BasePrice.Equal(decimal.NewFromInt(1350000)))
	assert.Equal(t, "1421010", parsed.DisplayPrice.String())
	assert.Equal(t, 5, parsed.StockQuantity)
	assert.Equal(t, models.ConditionNew, parsed.Condition)
	assert.False(t, parsed.ConditionDefaulted)
	assert.Equal(t, map[string]string{
		"screen_size": "6.8 inches",
		"color":       "Titanium Black",
	}, parsed.Attributes)
}

func TestParseRow_NumericCells(t *testing.T) {
	raw := models.RawRow{
		models.ColumnProductName:   "Cotton Chitenje",
		models.ColumnBasePrice:     float64(8500),
		models.ColumnStockQuantity: 12,
	}

	parsed, rowErrors := ParseRow(1, raw)

	require.Empty(t, rowErrors)
	assert.True(t, parsed.BasePrice.Equal(decimal.NewFromInt(8500)))
	assert.Equal(t, 12, parsed.StockQuantity)
	assert.Equal(t, models.TemplateGeneral, parsed.TemplateType)
	assert.Empty(t, parsed.Attributes)
}

func TestParseRow_MissingRequiredFields(t *testing.T) {
	parsed, rowErrors := ParseRow(7, models.RawRow{models.ColumnCategory: "Fashion"})

	assert.Nil(t, parsed)
	require.Len(t, rowErrors, 3)

	fields := make([]string, 0, len(rowErrors))
	for _, e := range rowErrors {
		assert.Equal(t, 7, e.RowNumber)
		assert.Equal(t, models.ErrorKindParse, e.Kind)
		assert.Equal(t, models.RowErrorRequired, e.Code)
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "price", "stock"}, fields)
}

func TestParseRow_InvalidPrice(t *testing.T) {
	for _, price := range []string{"abc", "0", "-250", "MWK"} {
		t.Run(price, func(t *testing.T) {
			_, rowErrors := ParseRow(1, models.RawRow{
				models.ColumnProductName:   "Rice 5kg",
				models.ColumnBasePrice:     price,
				models.ColumnStockQuantity: "4",
			})

			require.Len(t, rowErrors, 1)
			assert.Equal(t, "price", rowErrors[0].Field)
			assert.Equal(t, models.RowErrorInvalid, rowErrors[0].Code)
			assert.Equal(t, `Base price must be a positive number, got "`+price+`"`, rowErrors[0].Message)
		})
	}
}

func TestParseRow_StockOutOfRange(t *testing.T) {
	_, rowErrors := ParseRow(7, models.RawRow{
		models.ColumnProductName:   "Rice 5kg",
		models.ColumnBasePrice:     "9000",
		models.ColumnStockQuantity: "18446744073709551615",
	})

	require.Len(t, rowErrors, 1)
	assert.Equal(t, 7, rowErrors[0].RowNumber)
	assert.Equal(t, "stock", rowErrors[0].Field)
	assert.Equal(t, models.RowErrorInvalid, rowErrors[0].Code)
	assert.Contains(t, rowErrors[0].Message, "2147483647")
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"0", 0, false},
		{"12", 12, false},
		{"5.0", 5, false},
		{"1,000", 1000, false},
		{"-1", 0, true},
		{"2.5", 0, true},
		{"many", 0, true},
		{"2147483647", 2147483647, false},
		{"2147483648", 0, true},
		{"18446744073709551615", 0, true},
		{"1e19", 0, true},
		{"9999999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := parseStock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		input     string
		expected  models.Condition
		defaulted bool
	}{
		{"NEW", models.ConditionNew, false},
		{"brand new", models.ConditionNew, false},
		{"Brand-New", models.ConditionNew, false},
		{"like new", models.ConditionLikeNew, false},
		{"used", models.ConditionUsed, false},
		{"Refurbished", models.ConditionRefurbished, false},
		{"", models.ConditionNew, true},
		{"mint", models.ConditionNew, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			condition, defaulted := parseCondition(tt.input)
			assert.Equal(t, tt.expected, condition)
			assert.Equal(t, tt.defaulted, defaulted)
		})
	}
}

func TestClassifyRow(t *testing.T) {
	t.Run("spec columns sorted and blanks dropped", func(t *testing.T) {
		row := ClassifyRow(models.RawRow{
			models.ColumnProductName: "HP 250 G9",
			"Spec: Storage":          "512GB",
			"Spec: RAM":              "8GB",
			"Spec: Battery":          "",
		})

		electronics, ok := row.(ElectronicsRow)
		require.True(t, ok)
		assert.Equal(t, []RowAttribute{
			{Label: "RAM", Value: "8GB"},
			{Label: "Storage", Value: "512GB"},
		}, electronics.Attributes())
		assert.Equal(t, models.TemplateElectronics, TemplateOf(row))
	})

	t.Run("label value pairs ordered by index", func(t *testing.T) {
		row := ClassifyRow(models.RawRow{
			models.ColumnProductName: "Chitenje",
			"Label_2":                "Colour",
			"Value_2":                "Blue",
			"Label_1":                "Material",
			"Value_1":                "Cotton",
			"Label_3":                "Size",
			"Value_3":                " ",
		})

		general, ok := row.(GeneralRow)
		require.True(t, ok)
		assert.Equal(t, []RowAttribute{
			{Label: "Material", Value: "Cotton"},
			{Label: "Colour", Value: "Blue"},
		}, general.Attributes())
		assert.Equal(t, models.TemplateGeneral, TemplateOf(row))
	})

	t.Run("no attribute columns follows the category", func(t *testing.T) {
		laptop := ClassifyRow(models.RawRow{models.ColumnCategory: "Laptops"})
		shoes := ClassifyRow(models.RawRow{models.ColumnCategory: "Shoes"})

		assert.IsType(t, UnrecognizedRow{}, laptop)
		assert.Nil(t, laptop.Attributes())
		assert.Equal(t, models.TemplateElectronics, TemplateOf(laptop))
		assert.Equal(t, models.TemplateGeneral, TemplateOf(shoes))
	})

	t.Run("fields are trimmed", func(t *testing.T) {
		row := ClassifyRow(models.RawRow{
			models.ColumnProductName: "  Tecno Spark 20  ",
			models.ColumnSKU:         " TS20 ",
		})
		assert.Equal(t, "Tecno Spark 20", row.Core().Name)
		assert.Equal(t, "TS20", row.Core().SKU)
	})
}
