package models

import "strconv"

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// Recognized upload columns. Keys are case-sensitive.
const (
	ColumnProductName   = "Product Name"
	ColumnCategory      = "Category"
	ColumnBrand         = "Brand"
	ColumnSKU           = "SKU"
	ColumnBasePrice     = "Base Price (MWK)"
	ColumnStockQuantity = "Stock Quantity"
	ColumnCondition     = "Condition"
	ColumnDescription   = "Description"

	// ColumnSourceRow is set by ingestion to the spreadsheet line of the row
	ColumnSourceRow = "_row"

	SpecColumnPrefix  = "Spec:"
	LabelColumnPrefix = "Label_"
	ValueColumnPrefix = "Value_"
)

// CoreColumns lists the fixed columns in template order
var CoreColumns = []string{
	ColumnProductName,
	ColumnCategory,
	ColumnBrand,
	ColumnSKU,
	ColumnBasePrice,
	ColumnStockQuantity,
	ColumnCondition,
	ColumnDescription,
}

// RawRow is one spreadsheet row as handed over by file ingestion.
// Values are strings, numbers or nil.
type RawRow map[string]interface{}

// SplitSourceRow returns the spreadsheet line recorded by ingestion, or 0,
// and the row without that entry. The receiver is not modified.
func (r RawRow) SplitSourceRow() (int, RawRow) {
	v, ok := r[ColumnSourceRow]
	if !ok {
		return 0, r
	}
	line := 0
	switch n := v.(type) {
	case int:
		line = n
	case int64:
		line = int(n)
	case float64:
		line = int(n)
	case string:
		line, _ = strconv.Atoi(n)
	}

	rest := make(RawRow, len(r)-1)
	for k, val := range r {
		if k != ColumnSourceRow {
			rest[k] = val
		}
	}
	return line, rest
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, number
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	TemplateType TemplateType           `json:"templateType"`
	Version      string                 `json:"version"`
	Columns      []ImportTemplateColumn `json:"columns"`
	SampleData   []map[string]string    `json:"sampleData,omitempty"`
}

// coreImportColumns are shared by every template
func coreImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: ColumnProductName, Description: "Product name as buyers should see it", Required: true, Type: "string", Example: "Samsung Galaxy A15"},
		{Name: ColumnCategory, Description: "Category name; decides which specifications are required", Required: false, Type: "string", Example: "Mobile Phones"},
		{Name: ColumnBrand, Description: "Brand or manufacturer", Required: false, Type: "string", Example: "Samsung"},
		{Name: ColumnSKU, Description: "Your own stock code; generated when empty", Required: false, Type: "string", Example: "A15-BLK-128"},
		{Name: ColumnBasePrice, Description: "Your price in Malawi Kwacha, without the platform fee", Required: true, Type: "number", Example: "150000"},
		{Name: ColumnStockQuantity, Description: "Units available, 0 or more", Required: true, Type: "number", Example: "10"},
		{Name: ColumnCondition, Description: "NEW, LIKE_NEW, USED or REFURBISHED; defaults to NEW", Required: false, Type: "string", Example: "NEW"},
		{Name: ColumnDescription, Description: "Free text description", Required: false, Type: "string", Example: "Dual SIM, 1 year warranty"},
	}
}

// ElectronicsImportTemplate uses one "Spec:" column per specification
func ElectronicsImportTemplate() ImportTemplate {
	columns := coreImportColumns()
	columns = append(columns,
		ImportTemplateColumn{Name: SpecColumnPrefix + " RAM", Description: "Memory, e.g. 4GB", Type: "string", Example: "4GB"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Storage", Description: "Internal storage, e.g. 128GB", Type: "string", Example: "128GB"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Screen Size", Description: "Diagonal in inches", Type: "string", Example: "6.5\""},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Battery", Description: "Capacity in mAh", Type: "string", Example: "5000mAh"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Camera", Description: "Main camera megapixels", Type: "string", Example: "50MP"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Processor", Description: "Chipset or CPU", Type: "string", Example: "Helio G99"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Resolution", Description: "720p, 1080p, 1440p, 4K or 8K", Type: "string", Example: "1080p"},
		ImportTemplateColumn{Name: SpecColumnPrefix + " Color", Description: "Main colour", Type: "string", Example: "Black"},
	)
	return ImportTemplate{
		TemplateType: TemplateElectronics,
		Version:      "1.0",
		Columns:      columns,
		SampleData: []map[string]string{
			{
				ColumnProductName:             "Samsung Galaxy A15",
				ColumnCategory:                "Mobile Phones",
				ColumnBrand:                   "Samsung",
				ColumnBasePrice:               "150000",
				ColumnStockQuantity:           "10",
				ColumnCondition:               "NEW",
				SpecColumnPrefix + " RAM":     "4GB",
				SpecColumnPrefix + " Storage": "128GB",
			},
		},
	}
}

// GeneralImportTemplate uses numbered Label_n/Value_n pairs for free-form attributes
func GeneralImportTemplate() ImportTemplate {
	columns := coreImportColumns()
	for i := 1; i <= 3; i++ {
		n := strconv.Itoa(i)
		columns = append(columns,
			ImportTemplateColumn{Name: LabelColumnPrefix + n, Description: "Attribute name, e.g. Material", Type: "string", Example: "Material"},
			ImportTemplateColumn{Name: ValueColumnPrefix + n, Description: "Value for Label_" + n, Type: "string", Example: "Cotton"},
		)
	}
	return ImportTemplate{
		TemplateType: TemplateGeneral,
		Version:      "1.0",
		Columns:      columns,
		SampleData: []map[string]string{
			{
				ColumnProductName:       "Cotton Chitenje",
				ColumnCategory:          "Fashion",
				ColumnBasePrice:         "8500",
				ColumnStockQuantity:     "25",
				LabelColumnPrefix + "1": "Material",
				ValueColumnPrefix + "1": "Cotton",
			},
		},
	}
}

// ImportTemplateFor returns the template of the given type; anything else gets the general one
func ImportTemplateFor(t TemplateType) ImportTemplate {
	if t == TemplateElectronics {
		return ElectronicsImportTemplate()
	}
	return GeneralImportTemplate()
}
