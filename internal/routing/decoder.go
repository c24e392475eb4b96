package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"tourplan/internal/model"
)

// ErrTooFewStops marks a tour that cannot be decoded into geometry.
// It is reported for that tour only, never fatal for the batch.
var ErrTooFewStops = errors.New("route: tour needs at least two stops")

// Decoder turns an optimizer tour's stop sequence into drivable route
// geometry by querying an external routing provider and decoding its
// polyline sections.
type Decoder struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	log     zerolog.Logger
}

func NewDecoder(baseURL, apiKey string, log zerolog.Logger) *Decoder {
	return &Decoder{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{},
		log:     log.With().Str("component", "route_decoder").Logger(),
	}
}

type routeSection struct {
	Polyline string `json:"polyline"`
	Summary  struct {
		LengthM     int `json:"length"`
		DurationSec int `json:"duration"`
	} `json:"summary"`
}

type routesResponse struct {
	Routes []struct {
		Sections []routeSection `json:"sections"`
	} `json:"routes"`
}

// TourGeometry requests one drivable path for the whole tour: origin is
// the first stop, destination the last, everything between rides along
// as via points. Returns the decoded coordinate sequence plus the
// per-section summaries as segments.
func (d *Decoder) TourGeometry(ctx context.Context, tour model.Tour) ([]model.GeoPoint, []model.RouteSegment, error) {
	if len(tour.Stops) < 2 {
		return nil, nil, ErrTooFewStops
	}
	origin := tour.Stops[0].Location
	dest := tour.Stops[len(tour.Stops)-1].Location
	vias := make([]model.GeoPoint, 0, len(tour.Stops)-2)
	for _, s := range tour.Stops[1 : len(tour.Stops)-1] {
		vias = append(vias, s.Location)
	}

	sections, err := d.fetchRoute(ctx, origin, dest, vias)
	if err != nil {
		return nil, nil, err
	}

	var coords []model.GeoPoint
	segments := make([]model.RouteSegment, 0, len(sections))
	for i, sec := range sections {
		pts, err := DecodePolyline(sec.Polyline)
		if err != nil {
			return nil, nil, fmt.Errorf("section %d: %w", i, err)
		}
		coords = append(coords, pts...)
		segments = append(segments, model.RouteSegment{
			Seq:         i,
			DistanceM:   sec.Summary.LengthM,
			DurationSec: sec.Summary.DurationSec,
			Polyline:    sec.Polyline,
			Coordinates: pts,
		})
	}
	return coords, segments, nil
}

// TourSegments decodes leg by leg, one request per consecutive stop
// pair, for stepwise display.
func (d *Decoder) TourSegments(ctx context.Context, tour model.Tour) ([]model.RouteSegment, error) {
	if len(tour.Stops) < 2 {
		return nil, ErrTooFewStops
	}
	segments := make([]model.RouteSegment, 0, len(tour.Stops)-1)
	for i := 0; i < len(tour.Stops)-1; i++ {
		sections, err := d.fetchRoute(ctx, tour.Stops[i].Location, tour.Stops[i+1].Location, nil)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		var distM, durSec int
		var coords []model.GeoPoint
		var raw string
		for _, sec := range sections {
			pts, err := DecodePolyline(sec.Polyline)
			if err != nil {
				return nil, fmt.Errorf("leg %d: %w", i, err)
			}
			coords = append(coords, pts...)
			distM += sec.Summary.LengthM
			durSec += sec.Summary.DurationSec
			raw = sec.Polyline
		}
		segments = append(segments, model.RouteSegment{
			Seq:         i,
			DistanceM:   distM,
			DurationSec: durSec,
			Polyline:    raw,
			Coordinates: coords,
		})
	}
	return segments, nil
}

func (d *Decoder) fetchRoute(ctx context.Context, origin, dest model.GeoPoint, vias []model.GeoPoint) ([]routeSection, error) {
	q := url.Values{}
	q.Set("transportMode", "car")
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", dest.Lat, dest.Lng))
	for _, v := range vias {
		q.Add("via", fmt.Sprintf("%f,%f", v.Lat, v.Lng))
	}
	q.Set("return", "polyline,summary")
	if d.APIKey != "" {
		q.Set("apiKey", d.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/v8/routes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: unexpected status %d", resp.StatusCode)
	}

	var decoded routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode routing response: %w", err)
	}
	if len(decoded.Routes) == 0 || len(decoded.Routes[0].Sections) == 0 {
		return nil, errors.New("routing: empty route in response")
	}
	return decoded.Routes[0].Sections, nil
}
