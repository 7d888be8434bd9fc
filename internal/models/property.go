package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Property is a listing normalized from the MLS search API
type Property struct {
	ID           string   `json:"id"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	PostalCode   string   `json:"postal_code"`
	Price        float64  `json:"price"`
	Bedrooms     int      `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	SquareFeet   int      `json:"square_feet"`
	PropertyType string   `json:"property_type"`
	Status       string   `json:"status"`
	DaysOnMarket int      `json:"days_on_market"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Photos       []string `json:"photos"`
	Description  string   `json:"description,omitempty"`
	ListingAgent string   `json:"listing_agent,omitempty"`
}

// PropertySearchRequest is the inbound search shape accepted by the MLS proxy
type PropertySearchRequest struct {
	Location     string   `json:"location"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	PostalCode   string   `json:"postal_code"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMiles  float64  `json:"radius_miles"`
	MinPrice     float64  `json:"min_price" binding:"omitempty,min=0"`
	MaxPrice     float64  `json:"max_price" binding:"omitempty,min=0"`
	MinBedrooms  int      `json:"min_bedrooms" binding:"omitempty,min=0"`
	MinBathrooms float64  `json:"min_bathrooms" binding:"omitempty,min=0"`
	PropertyType string   `json:"property_type"`
	Status       []string `json:"status"`
	Limit        int      `json:"limit" binding:"omitempty,min=1,max=100"`
}

// SavedSearch stores a property search for later reuse
type SavedSearch struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"size:128;not null;index" json:"user_id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Criteria  datatypes.JSON `gorm:"type:jsonb;not null" json:"criteria"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

// BeforeCreate hook for saved searches
func (s *SavedSearch) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the SavedSearch model
func (SavedSearch) TableName() string {
	return "searches"
}

// SaveSearchRequest represents the data needed to save a search
type SaveSearchRequest struct {
	Name     string                `json:"name" binding:"required"`
	Criteria PropertySearchRequest `json:"criteria"`
}
