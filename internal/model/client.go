// Package model defines the domain types shared by the validator, scorer, store, and pipeline.
package model

import "time"

// BusinessCategory is the closed set of business categories a client can belong to.
type BusinessCategory string

const (
	CategoryRetail     BusinessCategory = "Retail"
	CategoryFood       BusinessCategory = "Food"
	CategoryFashion    BusinessCategory = "Fashion"
	CategoryTechnology BusinessCategory = "Technology"
	CategoryServices   BusinessCategory = "Services"
	CategoryHealth     BusinessCategory = "Health"
	CategoryEducation  BusinessCategory = "Education"
	CategoryAutomotive BusinessCategory = "Automotive"
)

// Categories lists every valid BusinessCategory in display order.
var Categories = []BusinessCategory{
	CategoryRetail,
	CategoryFood,
	CategoryFashion,
	CategoryTechnology,
	CategoryServices,
	CategoryHealth,
	CategoryEducation,
	CategoryAutomotive,
}

// Valid reports whether c is one of the enumerated categories. Matching is case-sensitive.
func (c BusinessCategory) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// ClientRecord is one evaluated business after validation.
// Rating and ReviewCount are nil when the input omitted them.
type ClientRecord struct {
	Name               string           `json:"name" validate:"required"`
	Phone              string           `json:"phone,omitempty"`
	BusinessCategory   BusinessCategory `json:"business_category" validate:"required,category"`
	Location           string           `json:"location" validate:"required"`
	Rating             *float64         `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	ReviewCount        *int             `json:"review_count,omitempty" validate:"omitempty,gte=0"`
	TransactionHistory string           `json:"transaction_history,omitempty"`
	Email              string           `json:"email,omitempty"`
	Website            string           `json:"website,omitempty"`
}

// ScoredClient is a standalone ClientRecord scored via the single-add path.
// It has no upload association.
type ScoredClient struct {
	ID string `json:"id"`
	ClientRecord
	Analysis  AnalysisResult `json:"analysis"`
	CreatedAt time.Time      `json:"created_at"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
