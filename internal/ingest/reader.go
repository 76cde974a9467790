// Package ingest reads uploaded spreadsheets into raw rows.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"bulk-upload-service/internal/models"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, upload a .csv or .xlsx file")
	ErrMissingHeader     = errors.New("file has no header row")
)

// preferredSheet is read first when a workbook has it
const preferredSheet = "Products"

// DetectFormat returns the import format implied by a file name
func DetectFormat(fileName string) (models.ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return models.ImportFormatCSV, nil
	case ".xlsx":
		return models.ImportFormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Read parses a CSV or XLSX upload into raw rows in file order
func Read(r io.Reader, format models.ImportFormat) ([]models.RawRow, error) {
	switch format {
	case models.ImportFormatCSV:
		return ReadCSV(r)
	case models.ImportFormatXLSX:
		return ReadXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ReadCSV parses a CSV file whose first record is the header
func ReadCSV(r io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		// Blank lines are skipped by the reader, so the line comes from the reader itself
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}

	return toRows(header, records, lines)
}

// ReadXLSX parses the Products sheet, or the first sheet, of a workbook
func ReadXLSX(r io.Reader) ([]models.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingHeader
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, preferredSheet) {
			sheetName = name
			break
		}
	}

	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(excelRows) == 0 {
		return nil, ErrMissingHeader
	}

	lines := make([]int, len(excelRows)-1)
	for i := range lines {
		lines[i] = i + 2
	}
	return toRows(excelRows[0], excelRows[1:], lines)
}

// toRows keys each record by the cleaned header. Header case is kept because
// column names are matched exactly; the required marker " *" is dropped.
// Each kept row records its spreadsheet line under models.ColumnSourceRow.
func toRows(header []string, records [][]string, lines []int) ([]models.RawRow, error) {
	columns := make([]string, len(header))
	present := false
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		h = strings.TrimSpace(strings.TrimSuffix(h, "*"))
		columns[i] = h
		if h != "" {
			present = true
		}
	}
	if !present {
		return nil, ErrMissingHeader
	}

	rows := make([]models.RawRow, 0, len(records))
	for n, record := range records {
		row := make(models.RawRow, len(columns)+1)
		blank := true
		for i, col := range columns {
			if col == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if value != "" {
				blank = false
			}
			row[col] = value
		}
		if blank {
			continue
		}
		row[models.ColumnSourceRow] = lines[n]
		rows = append(rows, row)
	}
	return rows, nil
}
