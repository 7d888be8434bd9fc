package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

var (
	ErrNoAPIKey         = errors.New("GOOGLE_MAPS_API_KEY environment variable not set")
	ErrLocationNotFound = errors.New("location could not be geocoded")
)

// Geocoder resolves a free-text location to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// MapsGeocoder geocodes with the Google Maps Geocoding API
type MapsGeocoder struct {
	client  *maps.Client
	timeout time.Duration
}

// NewMapsGeocoder creates a geocoder. Extra options are passed to the maps client.
func NewMapsGeocoder(apiKey string, opts ...maps.ClientOption) (*MapsGeocoder, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsGeocoder{client: client, timeout: 5 * time.Second}, nil
}

func (g *MapsGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return 0, 0, ErrLocationNotFound
	}

	location := results[0].Geometry.Location
	return location.Lat, location.Lng, nil
}
