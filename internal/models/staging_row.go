package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RowStatus represents the validation status of a staged row
type RowStatus string

const (
	RowStatusPending   RowStatus = "PENDING"
	RowStatusValid     RowStatus = "VALID"
	RowStatusInvalid   RowStatus = "INVALID"
	RowStatusSkipped   RowStatus = "SKIPPED"
	RowStatusCommitted RowStatus = "COMMITTED"
)

// CanTransitionTo reports whether a row may move from s to next.
// PENDING resolves once; only VALID rows are committed.
func (s RowStatus) CanTransitionTo(next RowStatus) bool {
	switch s {
	case RowStatusPending:
		return next == RowStatusValid || next == RowStatusInvalid || next == RowStatusSkipped
	case RowStatusValid:
		return next == RowStatusCommitted
	default:
		return false
	}
}

// Condition is the physical condition of a listed item
type Condition string

const (
	ConditionNew         Condition = "NEW"
	ConditionLikeNew     Condition = "LIKE_NEW"
	ConditionUsed        Condition = "USED"
	ConditionRefurbished Condition = "REFURBISHED"
)

// RowErrorKind classifies a row-level problem
type RowErrorKind string

const (
	ErrorKindParse          RowErrorKind = "PARSE_ERROR"
	ErrorKindDuplicate      RowErrorKind = "DUPLICATE_CONFLICT"
	ErrorKindSpecDeficiency RowErrorKind = "SPEC_DEFICIENCY"
	ErrorKindCommitFailure  RowErrorKind = "COMMIT_FAILURE"
)

// Row error codes
const (
	RowErrorRequired         = "REQUIRED"
	RowErrorInvalid          = "INVALID"
	RowErrorDuplicateInShop  = "DUPLICATE_IN_SHOP"
	RowErrorDuplicateSKU     = "DUPLICATE_SKU"
	RowErrorDuplicateInBatch = "DUPLICATE_IN_BATCH"
	RowErrorMissingSpec      = "MISSING_SPEC"
	RowErrorInvalidSpec      = "INVALID_SPEC"
	RowErrorCommitFailed     = "COMMIT_FAILED"
)

// RowError is a structured problem found on one row
type RowError struct {
	RowNumber    int          `json:"rowNumber"`
	Field        string       `json:"field,omitempty"`
	Kind         RowErrorKind `json:"kind"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	RefRowNumber int          `json:"refRowNumber,omitempty"`
}

// IsHard reports whether the error makes the row unusable
func (e RowError) IsHard() bool {
	return e.Kind == ErrorKindParse
}

// StagingRow is one uploaded spreadsheet row and its validation outcome
type StagingRow struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID      uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_staging_rows_batch_row" json:"batchId"`
	RowNumber    int               `gorm:"not null;uniqueIndex:idx_staging_rows_batch_row" json:"rowNumber"`
	RawData      datatypes.JSONMap `json:"rawData"`
	TemplateType TemplateType      `gorm:"type:varchar(20)" json:"templateType"`
	Status       RowStatus         `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	// Parsed fields
	Parsed         bool                                  `gorm:"not null;default:false" json:"parsed"`
	ProductName    string                                `gorm:"type:varchar(500)" json:"productName,omitempty"`
	NormalizedName string                                `gorm:"type:varchar(500);index" json:"normalizedName,omitempty"`
	Category       string                                `gorm:"type:varchar(255)" json:"category,omitempty"`
	Brand          string                                `gorm:"type:varchar(255)" json:"brand,omitempty"`
	SKU            string                                `gorm:"type:varchar(100)" json:"sku,omitempty"`
	BasePrice      decimal.Decimal                       `gorm:"type:decimal(14,2)" json:"basePrice"`
	DisplayPrice   decimal.Decimal                       `gorm:"type:decimal(14,2)" json:"displayPrice"`
	StockQuantity  int                                   `json:"stockQuantity"`
	Condition      Condition                             `gorm:"type:varchar(20)" json:"condition,omitempty"`
	Description    string                                `gorm:"type:text" json:"description,omitempty"`
	Attributes     datatypes.JSONType[map[string]string] `json:"attributes"`

	// Validation outcome
	MatchedProductID    *uuid.UUID                     `gorm:"type:uuid" json:"matchedProductId,omitempty"`
	MatchType           string                         `gorm:"type:varchar(20)" json:"matchType,omitempty"`
	MatchConfidence     int                            `json:"matchConfidence"`
	MatchExplanation    string                         `gorm:"type:text" json:"matchExplanation,omitempty"`
	WillCreateProduct   bool                           `gorm:"not null;default:false" json:"willCreateProduct"`
	MissingSpecs        datatypes.JSONType[[]string]   `json:"missingSpecs"`
	Errors              datatypes.JSONType[[]RowError] `json:"errors"`
	TargetListingStatus ListingStatus                  `gorm:"type:varchar(20)" json:"targetListingStatus,omitempty"`
	ListingID           *uuid.UUID                     `gorm:"type:uuid" json:"listingId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (StagingRow) TableName() string {
	return "staging_rows"
}

// BeforeCreate assigns an ID and makes sure JSON columns are never NULL
func (r *StagingRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RawData == nil {
		r.RawData = datatypes.JSONMap{}
	}
	if r.Attributes.Data() == nil {
		r.Attributes = datatypes.NewJSONType(map[string]string{})
	}
	if r.MissingSpecs.Data() == nil {
		r.MissingSpecs = datatypes.NewJSONType([]string{})
	}
	if r.Errors.Data() == nil {
		r.Errors = datatypes.NewJSONType([]RowError{})
	}
	return nil
}

// RowErrors returns the structured errors recorded on the row
func (r *StagingRow) RowErrors() []RowError {
	return r.Errors.Data()
}

// HasHardErrors reports whether any recorded error blocks the row
func (r *StagingRow) HasHardErrors() bool {
	for _, e := range r.Errors.Data() {
		if e.IsHard() {
			return true
		}
	}
	return false
}
