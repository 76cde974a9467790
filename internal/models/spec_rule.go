package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttributeConstraint restricts the normalized value of one attribute.
// Min and Max apply to the leading number of the value.
type AttributeConstraint struct {
	Type    string   `json:"type"` // string, number
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Enum    []string `json:"enum,omitempty"`
}

// SpecRule lists the attributes a category requires
type SpecRule struct {
	ID           uuid.UUID                                          `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID   *uuid.UUID                                         `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	CategoryName string                                             `gorm:"type:varchar(255);not null;index" json:"categoryName"`
	RequiredKeys datatypes.JSONType[[]string]                       `json:"requiredKeys"`
	OptionalKeys datatypes.JSONType[[]string]                       `json:"optionalKeys"`
	Labels       datatypes.JSONType[map[string]string]              `json:"labels"`
	Constraints  datatypes.JSONType[map[string]AttributeConstraint] `json:"constraints"`
	IsActive     bool                                               `gorm:"not null;default:true" json:"isActive"`
	CreatedAt    time.Time                                          `json:"createdAt"`
	UpdatedAt    time.Time                                          `json:"updatedAt"`
}

func (SpecRule) TableName() string {
	return "spec_rules"
}

func (r *SpecRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Required returns the required attribute keys in declaration order
func (r *SpecRule) Required() []string {
	return r.RequiredKeys.Data()
}

// Optional returns the optional attribute keys
func (r *SpecRule) Optional() []string {
	return r.OptionalKeys.Data()
}

// Constraint returns the constraint for key, if any
func (r *SpecRule) Constraint(key string) (AttributeConstraint, bool) {
	c, ok := r.Constraints.Data()[key]
	return c, ok
}

// Label returns the human label for key, falling back to the key itself
func (r *SpecRule) Label(key string) string {
	if l, ok := r.Labels.Data()[key]; ok && l != "" {
		return l
	}
	return key
}
