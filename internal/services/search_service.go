package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"realtorvoice/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrMLSUnavailable  = errors.New("property search is not configured")
	ErrSearchNotFound  = errors.New("saved search not found")
	ErrInvalidCriteria = errors.New("search needs a location, city, postal code or coordinates")
)

const (
	defaultSearchLimit  = 25
	defaultRadiusMiles  = 10
	maxMLSErrorBodySize = 2048
)

// MLSError is a non-2xx response from the listing search API
type MLSError struct {
	StatusCode int
	Body       string
}

func (e *MLSError) Error() string {
	return fmt.Sprintf("mls search returned %d: %s", e.StatusCode, e.Body)
}

// SearchStore persists saved searches
type SearchStore interface {
	CreateSearch(ctx context.Context, search *models.SavedSearch) error
	ListSearches(ctx context.Context, userID string) ([]models.SavedSearch, error)
	DeleteSearch(ctx context.Context, userID, id string) (bool, error)
}

// MLSService proxies property searches to the MLS API and stores saved searches
type MLSService struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	geocoder Geocoder
	searches SearchStore
	logger   *zap.Logger
}

// NewMLSService creates the MLS proxy. geocoder may be nil, in which case
// free-text locations are passed through unresolved.
func NewMLSService(baseURL, apiKey string, geocoder Geocoder, searches SearchStore, logger *zap.Logger) *MLSService {
	return &MLSService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		geocoder: geocoder,
		searches: searches,
		logger:   logger,
	}
}

type mlsQuery struct {
	Location     string   `json:"location,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Latitude     float64  `json:"latitude,omitempty"`
	Longitude    float64  `json:"longitude,omitempty"`
	RadiusMiles  float64  `json:"radius_miles,omitempty"`
	MinPrice     float64  `json:"min_price,omitempty"`
	MaxPrice     float64  `json:"max_price,omitempty"`
	MinBeds      int      `json:"min_beds,omitempty"`
	MinBaths     float64  `json:"min_baths,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Status       []string `json:"status,omitempty"`
	Limit        int      `json:"limit"`
}

type mlsMedia struct {
	MediaURL string `json:"MediaURL"`
	Order    int    `json:"Order"`
}

type mlsListing struct {
	ListingKey            string     `json:"ListingKey"`
	ListPrice             float64    `json:"ListPrice"`
	UnparsedAddress       string     `json:"UnparsedAddress"`
	City                  string     `json:"City"`
	StateOrProvince       string     `json:"StateOrProvince"`
	PostalCode            string     `json:"PostalCode"`
	BedroomsTotal         int        `json:"BedroomsTotal"`
	BathroomsTotalDecimal float64    `json:"BathroomsTotalDecimal"`
	BathroomsTotalInteger int        `json:"BathroomsTotalInteger"`
	LivingArea            float64    `json:"LivingArea"`
	PropertyType          string     `json:"PropertyType"`
	StandardStatus        string     `json:"StandardStatus"`
	DaysOnMarket          int        `json:"DaysOnMarket"`
	Latitude              float64    `json:"Latitude"`
	Longitude             float64    `json:"Longitude"`
	Media                 []mlsMedia `json:"Media"`
	PublicRemarks         string     `json:"PublicRemarks"`
	ListAgentFullName     string     `json:"ListAgentFullName"`
}

// Search runs a property search. A free-text location without coordinates is
// geocoded first so the MLS can search by radius.
func (s *MLSService) Search(ctx context.Context, req models.PropertySearchRequest) ([]models.Property, error) {
	if s.baseURL == "" {
		return nil, ErrMLSUnavailable
	}
	if req.Location == "" && req.City == "" && req.PostalCode == "" && req.Latitude == 0 && req.Longitude == 0 {
		return nil, ErrInvalidCriteria
	}

	query := s.buildQuery(ctx, req)
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/properties/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mls request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxMLSErrorBodySize))
		return nil, &MLSError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var payload struct {
		Listings []mlsListing `json:"listings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode mls response: %w", err)
	}

	properties := make([]models.Property, 0, len(payload.Listings))
	for _, l := range payload.Listings {
		properties = append(properties, l.toProperty())
	}
	return rankProperties(properties, query.Limit), nil
}

func (s *MLSService) buildQuery(ctx context.Context, req models.PropertySearchRequest) mlsQuery {
	q := mlsQuery{
		Location:     req.Location,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMiles:  req.RadiusMiles,
		MinPrice:     req.MinPrice,
		MaxPrice:     req.MaxPrice,
		MinBeds:      req.MinBedrooms,
		MinBaths:     req.MinBathrooms,
		PropertyType: req.PropertyType,
		Status:       req.Status,
		Limit:        req.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if len(q.Status) == 0 {
		q.Status = []string{"Active"}
	}

	if q.Location != "" && q.Latitude == 0 && q.Longitude == 0 && s.geocoder != nil {
		lat, lng, err := s.geocoder.Geocode(ctx, q.Location)
		if err != nil {
			// Fall back to the MLS's own text matching
			s.logger.Warn("geocoding search location failed", zap.String("location", q.Location), zap.Error(err))
		} else {
			q.Latitude, q.Longitude = lat, lng
		}
	}
	if (q.Latitude != 0 || q.Longitude != 0) && q.RadiusMiles == 0 {
		q.RadiusMiles = defaultRadiusMiles
	}
	return q
}

func (l mlsListing) toProperty() models.Property {
	baths := l.BathroomsTotalDecimal
	if baths == 0 {
		baths = float64(l.BathroomsTotalInteger)
	}

	media := append([]mlsMedia(nil), l.Media...)
	sort.SliceStable(media, func(i, j int) bool { return media[i].Order < media[j].Order })
	photos := make([]string, 0, len(media))
	for _, m := range media {
		if m.MediaURL != "" {
			photos = append(photos, m.MediaURL)
		}
	}

	return models.Property{
		ID:           l.ListingKey,
		Address:      l.UnparsedAddress,
		City:         l.City,
		State:        l.StateOrProvince,
		PostalCode:   l.PostalCode,
		Price:        l.ListPrice,
		Bedrooms:     l.BedroomsTotal,
		Bathrooms:    baths,
		SquareFeet:   int(l.LivingArea),
		PropertyType: l.PropertyType,
		Status:       l.StandardStatus,
		DaysOnMarket: l.DaysOnMarket,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		Photos:       photos,
		Description:  l.PublicRemarks,
		ListingAgent: l.ListAgentFullName,
	}
}

// rankProperties drops duplicate listing keys and puts the freshest listings
// first, then truncates to limit
func rankProperties(properties []models.Property, limit int) []models.Property {
	seen := make(map[string]struct{}, len(properties))
	unique := properties[:0]
	for _, p := range properties {
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
		}
		unique = append(unique, p)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].DaysOnMarket < unique[j].DaysOnMarket
	})
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func (s *MLSService) SaveSearch(ctx context.Context, userID string, req models.SaveSearchRequest) (*models.SavedSearch, error) {
	criteria, err := json.Marshal(req.Criteria)
	if err != nil {
		return nil, err
	}
	search := &models.SavedSearch{
		UserID:   userID,
		Name:     req.Name,
		Criteria: datatypes.JSON(criteria),
	}
	if err := s.searches.CreateSearch(ctx, search); err != nil {
		return nil, err
	}
	return search, nil
}

func (s *MLSService) ListSearches(ctx context.Context, userID string) ([]models.SavedSearch, error) {
	return s.searches.ListSearches(ctx, userID)
}

func (s *MLSService) DeleteSearch(ctx context.Context, userID, id string) error {
	deleted, err := s.searches.DeleteSearch(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSearchNotFound
	}
	return nil
}
