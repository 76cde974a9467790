package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApprovalStatus represents the moderation state of a catalog product
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusMerged   ApprovalStatus = "MERGED"
)

// IsActive returns true for products that can be matched against
func (s ApprovalStatus) IsActive() bool {
	return s == ApprovalStatusPending || s == ApprovalStatusApproved
}

// ListingStatus represents the sellable state of a listing
type ListingStatus string

const (
	ListingStatusNeedsImages ListingStatus = "NEEDS_IMAGES"
	ListingStatusNeedsSpecs  ListingStatus = "NEEDS_SPECS"
	ListingStatusLive        ListingStatus = "LIVE"
	ListingStatusBroken      ListingStatus = "BROKEN"
	ListingStatusPaused      ListingStatus = "PAUSED"
)

// BaseProduct is a shared catalog entry that listings point at
type BaseProduct struct {
	ID                uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string                       `gorm:"type:varchar(500);not null" json:"name"`
	NormalizedName    string                       `gorm:"type:varchar(500);not null;index" json:"normalizedName"`
	Brand             string                       `gorm:"type:varchar(255);index" json:"brand,omitempty"`
	Category          string                       `gorm:"type:varchar(255);index" json:"category,omitempty"`
	Keywords          datatypes.JSONType[[]string] `json:"keywords"`
	Aliases           datatypes.JSONType[[]string] `json:"aliases"`
	ApprovalStatus    ApprovalStatus               `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"approvalStatus"`
	IsVerified        bool                         `gorm:"not null;default:false" json:"isVerified"`
	MergedIntoID      *uuid.UUID                   `gorm:"type:uuid" json:"mergedIntoId,omitempty"`
	CreatedBySellerID string                       `gorm:"type:varchar(255)" json:"createdBySellerId,omitempty"`
	CreatedAt         time.Time                    `json:"createdAt"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

func (BaseProduct) TableName() string {
	return "base_products"
}

// BeforeCreate assigns an ID and keeps the verified flag in line with approval
func (p *BaseProduct) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ApprovalStatus == "" {
		p.ApprovalStatus = ApprovalStatusPending
	}
	p.IsVerified = p.ApprovalStatus == ApprovalStatusApproved
	if p.Keywords.Data() == nil {
		p.Keywords = datatypes.NewJSONType([]string{})
	}
	if p.Aliases.Data() == nil {
		p.Aliases = datatypes.NewJSONType([]string{})
	}
	return nil
}

// Category is a catalog category that spec rules may be keyed on
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Category) TableName() string {
	return "categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Shop is a seller storefront; its name seeds generated SKUs
type Shop struct {
	ID        string    `gorm:"type:varchar(255);primaryKey" json:"id"`
	SellerID  string    `gorm:"type:varchar(255);not null;index" json:"sellerId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Shop) TableName() string {
	return "shops"
}

// Listing is a seller's sellable instance of a catalog product
type Listing struct {
	ID              uuid.UUID                             `gorm:"type:uuid;primaryKey" json:"id"`
	BaseProductID   uuid.UUID                             `gorm:"type:uuid;not null;index" json:"baseProductId"`
	SellerID        string                                `gorm:"type:varchar(255);not null;index" json:"sellerId"`
	ShopID          string                                `gorm:"type:varchar(255);not null;uniqueIndex:idx_listings_shop_sku;index:idx_listings_shop_name" json:"shopId"`
	SKU             string                                `gorm:"type:varchar(100);not null;uniqueIndex:idx_listings_shop_sku" json:"sku"`
	ProductName     string                                `gorm:"type:varchar(500);not null" json:"productName"`
	NormalizedName  string                                `gorm:"type:varchar(500);not null;index:idx_listings_shop_name" json:"normalizedName"`
	BasePrice       decimal.Decimal                       `gorm:"type:decimal(14,2);not null" json:"basePrice"`
	DisplayPrice    decimal.Decimal                       `gorm:"type:decimal(14,2);not null" json:"displayPrice"`
	StockQuantity   int                                   `gorm:"not null;default:0" json:"stockQuantity"`
	Condition       Condition                             `gorm:"type:varchar(20);not null;default:'NEW'" json:"condition"`
	Description     string                                `gorm:"type:text" json:"description,omitempty"`
	Attributes      datatypes.JSONType[map[string]string] `json:"attributes"`
	Status          ListingStatus                         `gorm:"type:varchar(20);not null;index" json:"status"`
	BulkUploadID    *uuid.UUID                            `gorm:"<-:create;type:uuid;index" json:"bulkUploadId,omitempty"`
	SourceRowNumber int                                   `gorm:"<-:create" json:"sourceRowNumber,omitempty"`
	CreatedAt       time.Time                             `json:"createdAt"`
	UpdatedAt       time.Time                             `json:"updatedAt"`
}

func (Listing) TableName() string {
	return "listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Attributes.Data() == nil {
		l.Attributes = datatypes.NewJSONType(map[string]string{})
	}
	return nil
}

// SKUSequence is the database-backed per-shop, per-day SKU counter
type SKUSequence struct {
	ShopID    string    `gorm:"type:varchar(255);primaryKey" json:"shopId"`
	DateCode  string    `gorm:"type:varchar(6);primaryKey" json:"dateCode"`
	LastValue int64     `gorm:"not null;default:0" json:"lastValue"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (SKUSequence) TableName() string {
	return "sku_sequences"
}
