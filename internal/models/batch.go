package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateType identifies which column schema an upload uses
type TemplateType string

const (
	TemplateElectronics TemplateType = "ELECTRONICS"
	TemplateGeneral     TemplateType = "GENERAL"
	TemplateAuto        TemplateType = "AUTO"
)

// BatchStatus represents the lifecycle status of an upload batch
type BatchStatus string

const (
	BatchStatusStaging   BatchStatus = "STAGING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

// IsTerminal returns true if the batch can no longer change
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled
}

// UploadBatch is one spreadsheet upload and its aggregated outcome
type UploadBatch struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID     string       `gorm:"type:varchar(255);not null;index" json:"sellerId"`
	ShopID       string       `gorm:"type:varchar(255);not null;index" json:"shopId"`
	FileName     string       `gorm:"type:varchar(500)" json:"fileName"`
	TemplateType TemplateType `gorm:"type:varchar(20);not null;default:'AUTO'" json:"templateType"`
	Status       BatchStatus  `gorm:"type:varchar(20);not null;default:'STAGING';index" json:"status"`

	// Counters
	TotalRows          int `gorm:"not null;default:0" json:"totalRows"`
	ValidRows          int `gorm:"not null;default:0" json:"validRows"`
	InvalidRows        int `gorm:"not null;default:0" json:"invalidRows"`
	SkippedRows        int `gorm:"not null;default:0" json:"skippedRows"`
	CommittedRows      int `gorm:"not null;default:0" json:"committedRows"`
	FailedRows         int `gorm:"not null;default:0" json:"failedRows"`
	NeedsSpecsRows     int `gorm:"not null;default:0" json:"needsSpecsRows"`
	NeedsImagesRows    int `gorm:"not null;default:0" json:"needsImagesRows"`
	NewProductRows     int `gorm:"not null;default:0" json:"newProductRows"`
	NewProductsCreated int `gorm:"not null;default:0" json:"newProductsCreated"`

	CommitStartedAt *time.Time `json:"commitStartedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (UploadBatch) TableName() string {
	return "upload_batches"
}

// BeforeCreate assigns an ID when the caller did not
func (b *UploadBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// SellerUploadGate is a per-seller row locked while a new batch is staged,
// so the staging cap is checked and applied one upload at a time
type SellerUploadGate struct {
	SellerID  string    `gorm:"type:varchar(255);primaryKey" json:"sellerId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (SellerUploadGate) TableName() string {
	return "seller_upload_gates"
}

// CommittedListing describes one listing created by a commit
type CommittedListing struct {
	ListingID  uuid.UUID     `json:"listingId"`
	ProductID  uuid.UUID     `json:"productId"`
	RowNumber  int           `json:"rowNumber"`
	Name       string        `json:"name"`
	SKU        string        `json:"sku"`
	Status     ListingStatus `json:"status"`
	NewProduct bool          `json:"newProduct"`
}

// CommitSummary is the outcome of committing a batch, sent to the seller report
type CommitSummary struct {
	BatchID            uuid.UUID          `json:"batchId"`
	SellerID           string             `json:"sellerId"`
	ShopID             string             `json:"shopId"`
	FileName           string             `json:"fileName"`
	Committed          int                `json:"committed"`
	Skipped            int                `json:"skipped"`
	Failed             int                `json:"failed"`
	NewProductsCreated int                `json:"newProductsCreated"`
	NeedsSpecs         int                `json:"needsSpecs"`
	NeedsImages        int                `json:"needsImages"`
	Listings           []CommittedListing `json:"listings"`
	CompletedAt        time.Time          `json:"completedAt"`
}
