package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
)

// ReasonCode is the stable identifier of why a row was rejected
type ReasonCode string

const (
	ReasonMissingName      ReasonCode = "MISSING_NAME"
	ReasonMissingPrice     ReasonCode = "MISSING_PRICE"
	ReasonInvalidPrice     ReasonCode = "INVALID_PRICE"
	ReasonMissingStock     ReasonCode = "MISSING_STOCK"
	ReasonInvalidStock     ReasonCode = "INVALID_STOCK"
	ReasonDuplicateProduct ReasonCode = "DUPLICATE_PRODUCT"
	ReasonDuplicateSKU     ReasonCode = "DUPLICATE_SKU"
	ReasonDuplicateInFile  ReasonCode = "DUPLICATE_IN_FILE"
	ReasonUnknown          ReasonCode = "UNKNOWN"
)

// Correction sheet reason columns
const (
	ColumnRowNumber       = "Row"
	ColumnReason          = "Error Reason"
	ColumnReasonSecondary = "Chifukwa cha Vuto"
)

type reasonText struct {
	primary   string
	secondary string
}

// reasonTexts holds English and Chichewa text; %d is the referenced row number
var reasonTexts = map[ReasonCode]reasonText{
	ReasonMissingName:      {"Product name is missing", "Dzina la katundu likusowa"},
	ReasonMissingPrice:     {"Base price is missing", "Mtengo wa katundu ukusowa"},
	ReasonInvalidPrice:     {"Base price must be a positive number", "Mtengo uyenera kukhala nambala yoposa ziro"},
	ReasonMissingStock:     {"Stock quantity is missing", "Chiwerengero cha katundu chikusowa"},
	ReasonInvalidStock:     {"Stock quantity must be a whole number of zero or more", "Chiwerengero cha katundu chiyenera kukhala nambala yathunthu"},
	ReasonDuplicateProduct: {"This product is already listed in your shop", "Katunduyu ali kale mu shopu yanu"},
	ReasonDuplicateSKU:     {"This SKU is already used in your shop", "SKU iyi ikugwiritsidwa ntchito kale mu shopu yanu"},
	ReasonDuplicateInFile:  {"Same product as row %d in this file", "Katundu yemweyu ali pa mzere %d mu fayilo iyi"},
	ReasonUnknown:          {"", "Pali vuto pa mzere uwu"},
}

// ReasonCodeFor derives the reason code of a row error from its field and code.
// The message is only consulted when the code is absent.
func ReasonCodeFor(e models.RowError) ReasonCode {
	switch e.Code {
	case models.RowErrorDuplicateInShop:
		return ReasonDuplicateProduct
	case models.RowErrorDuplicateSKU:
		return ReasonDuplicateSKU
	case models.RowErrorDuplicateInBatch:
		return ReasonDuplicateInFile
	}

	msg := strings.ToLower(e.Message)
	required := e.Code == models.RowErrorRequired || (e.Code == "" && strings.Contains(msg, "required"))
	invalid := e.Code == models.RowErrorInvalid ||
		(e.Code == "" && (strings.Contains(msg, "positive") || strings.Contains(msg, "whole number") || strings.Contains(msg, "must be")))

	switch e.Field {
	case "name":
		if required {
			return ReasonMissingName
		}
	case "price":
		if required {
			return ReasonMissingPrice
		}
		if invalid {
			return ReasonInvalidPrice
		}
	case "stock":
		if required {
			return ReasonMissingStock
		}
		if invalid {
			return ReasonInvalidStock
		}
	}
	return ReasonUnknown
}

// describeReason renders a row error in both languages
func describeReason(e models.RowError) (string, string) {
	code := ReasonCodeFor(e)
	text := reasonTexts[code]
	switch code {
	case ReasonDuplicateInFile:
		return fmt.Sprintf(text.primary, e.RefRowNumber), fmt.Sprintf(text.secondary, e.RefRowNumber)
	case ReasonUnknown:
		return e.Message, text.secondary
	}
	return text.primary, text.secondary
}

// CorrectionRow is one rejected row with its original values and the reasons it failed
type CorrectionRow struct {
	RowNumber       int               `json:"rowNumber"`
	Status          models.RowStatus  `json:"status"`
	Values          map[string]string `json:"values"`
	ReasonCodes     []ReasonCode      `json:"reasonCodes"`
	Reason          string            `json:"reason"`
	ReasonSecondary string            `json:"reasonSecondary"`
}

// CorrectionReport lists a batch's invalid and skipped rows for fix-and-re-upload
type CorrectionReport struct {
	BatchID  uuid.UUID       `json:"batchId"`
	FileName string          `json:"fileName"`
	Columns  []string        `json:"columns"`
	Rows     []CorrectionRow `json:"rows"`
}

// Header returns the table header: row number, the original columns, then both reason columns
func (r *CorrectionReport) Header() []string {
	header := append([]string{ColumnRowNumber}, r.Columns...)
	return append(header, ColumnReason, ColumnReasonSecondary)
}

// Table renders the report as rows of cells matching Header
func (r *CorrectionReport) Table() [][]string {
	table := make([][]string, 0, len(r.Rows)+1)
	table = append(table, r.Header())
	for _, row := range r.Rows {
		cells := []string{strconv.Itoa(row.RowNumber)}
		for _, col := range r.Columns {
			cells = append(cells, row.Values[col])
		}
		cells = append(cells, row.Reason, row.ReasonSecondary)
		table = append(table, cells)
	}
	return table
}

// CorrectionReport builds the correction export of a batch owned by sellerID
func (s *StagingService) CorrectionReport(ctx context.Context, sellerID string, batchID uuid.UUID) (*CorrectionReport, error) {
	batch, err := loadOwnedBatch(ctx, s.repo, sellerID, batchID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListRowsByStatus(ctx, batchID, models.RowStatusInvalid, models.RowStatusSkipped)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected rows: %w", err)
	}

	report := &CorrectionReport{
		BatchID:  batch.ID,
		FileName: batch.FileName,
		Rows:     make([]CorrectionRow, 0, len(rows)),
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		values := make(map[string]string, len(row.RawData))
		for key, v := range row.RawData {
			values[key] = cellString(v)
			seen[key] = true
		}

		var codes []ReasonCode
		var primary, secondary []string
		for _, e := range row.RowErrors() {
			if e.Kind != models.ErrorKindParse && e.Kind != models.ErrorKindDuplicate {
				continue
			}
			p, sec := describeReason(e)
			codes = append(codes, ReasonCodeFor(e))
			primary = append(primary, p)
			secondary = append(secondary, sec)
		}

		report.Rows = append(report.Rows, CorrectionRow{
			RowNumber:       row.RowNumber,
			Status:          row.Status,
			Values:          values,
			ReasonCodes:     codes,
			Reason:          strings.Join(primary, "; "),
			ReasonSecondary: strings.Join(secondary, "; "),
		})
	}

	report.Columns = correctionColumns(seen)
	return report, nil
}

// correctionColumns orders columns as the upload template does: core columns,
// then spec columns alphabetically, then label/value pairs by index, then anything else.
func correctionColumns(seen map[string]bool) []string {
	columns := append([]string{}, models.CoreColumns...)
	core := make(map[string]bool, len(models.CoreColumns))
	for _, c := range models.CoreColumns {
		core[c] = true
	}

	var specs, others []string
	pairs := make(map[int]bool)
	for key := range seen {
		switch {
		case core[key]:
		case strings.HasPrefix(key, models.SpecColumnPrefix):
			specs = append(specs, key)
		default:
			if n, ok := pairIndex(key, models.LabelColumnPrefix); ok {
				pairs[n] = true
			} else if n, ok := pairIndex(key, models.ValueColumnPrefix); ok {
				pairs[n] = true
			} else {
				others = append(others, key)
			}
		}
	}
	sort.Strings(specs)
	sort.Strings(others)

	indexes := make([]int, 0, len(pairs))
	for n := range pairs {
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)

	columns = append(columns, specs...)
	for _, n := range indexes {
		columns = append(columns,
			fmt.Sprintf("%s%d", models.LabelColumnPrefix, n),
			fmt.Sprintf("%s%d", models.ValueColumnPrefix, n))
	}
	return append(columns, others...)
}
