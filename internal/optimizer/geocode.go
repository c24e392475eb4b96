package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"tourplan/internal/metrics"
	"tourplan/internal/model"
)

// ErrGeocode marks an address the provider could not resolve. The job
// it belongs to is dropped from the current optimizer call; the other
// jobs proceed.
var ErrGeocode = errors.New("geocode: no result")

// Geocoder resolves a free-form address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (model.GeoPoint, error)
}

// HTTPGeocoder calls a Pelias-style /geocode/search endpoint. Requests
// are throttled with a rate limiter to respect the provider's limits.
type HTTPGeocoder struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	limiter *rate.Limiter
}

func NewHTTPGeocoder(baseURL, apiKey string, rps float64) *HTTPGeocoder {
	if rps <= 0 {
		rps = 5
	}
	return &HTTPGeocoder{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (pt model.GeoPoint, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.GeocodeLookups.WithLabelValues(outcome).Inc()
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		return model.GeoPoint{}, err
	}

	q := url.Values{}
	q.Set("text", address)
	q.Set("size", "1")
	if g.APIKey != "" {
		q.Set("api_key", g.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return model.GeoPoint{}, err
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.GeoPoint{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.GeoPoint{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return model.GeoPoint{}, fmt.Errorf("%w for %q", ErrGeocode, address)
	}
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return model.GeoPoint{}, fmt.Errorf("geocode: invalid coordinate format for %q", address)
	}
	return model.GeoPoint{Lng: coords[0], Lat: coords[1]}, nil
}
