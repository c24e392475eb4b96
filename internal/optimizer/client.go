package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"tourplan/internal/model"
)

// ErrEmptyResponse marks an optimizer response without any tour. It
// aborts the current cluster's submission only, never the batch.
var ErrEmptyResponse = errors.New("optimizer: no tour in response")

// Config holds the optimizer client tunables.
type Config struct {
	Endpoint           string  `yaml:"endpoint"`
	ChunkSize          int     `yaml:"chunk_size"`
	GeocodeConcurrency int     `yaml:"geocode_concurrency"`
	ServiceTimeSec     int     `yaml:"service_time_sec"`
	ShiftStart         string  `yaml:"shift_start"`
	ShiftEnd           string  `yaml:"shift_end"`
	CostFixed          float64 `yaml:"cost_fixed"`
	CostPerMeter       float64 `yaml:"cost_per_meter"`
	CostPerSecond      float64 `yaml:"cost_per_second"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          400,
		GeocodeConcurrency: 5,
		ServiceTimeSec:     300,
		ShiftStart:         "08:00",
		ShiftEnd:           "18:00",
		CostFixed:          30,
		CostPerMeter:       0.0002,
		CostPerSecond:      0.005,
	}
}

func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.GeocodeConcurrency <= 0 {
		c.GeocodeConcurrency = d.GeocodeConcurrency
	}
	if c.ServiceTimeSec <= 0 {
		c.ServiceTimeSec = d.ServiceTimeSec
	}
	if c.ShiftStart == "" {
		c.ShiftStart = d.ShiftStart
	}
	if c.ShiftEnd == "" {
		c.ShiftEnd = d.ShiftEnd
	}
	if c.CostFixed == 0 {
		c.CostFixed = d.CostFixed
	}
	if c.CostPerMeter == 0 {
		c.CostPerMeter = d.CostPerMeter
	}
	if c.CostPerSecond == 0 {
		c.CostPerSecond = d.CostPerSecond
	}
	return c
}

// Client builds routing problems, submits them to the external
// optimizer and parses the returned solution.
type Client struct {
	cfg      Config
	geocoder Geocoder
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(cfg Config, geocoder Geocoder, log zerolog.Logger) *Client {
	return &Client{
		cfg:      cfg.Normalize(),
		geocoder: geocoder,
		http:     &http.Client{},
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Solve submits one fitted cluster. Jobs beyond ChunkSize are split
// into independent optimizer calls, since a single call has a practical
// job-count ceiling; the partial solutions are merged.
func (c *Client) Solve(ctx context.Context, warehouse model.Warehouse, cl model.Cluster) (model.Solution, error) {
	problem, skipped, err := c.BuildProblem(ctx, warehouse, cl)
	if err != nil {
		return model.Solution{}, err
	}
	for _, id := range skipped {
		c.log.Warn().Int64("order_id", id).Msg("address unresolvable, job dropped from submission")
	}
	if len(problem.Plan.Jobs) == 0 {
		return model.Solution{}, fmt.Errorf("%w: no resolvable jobs", ErrEmptyResponse)
	}

	var merged model.Solution
	jobs := problem.Plan.Jobs
	for start := 0; start < len(jobs); start += c.cfg.ChunkSize {
		end := start + c.cfg.ChunkSize
		if end > len(jobs) {
			end = len(jobs)
		}
		chunk := model.RoutingProblem{Fleet: problem.Fleet, Plan: model.Plan{Jobs: jobs[start:end]}}
		sol, err := c.submit(ctx, chunk)
		if err != nil {
			return model.Solution{}, err
		}
		merged.Tours = append(merged.Tours, sol.Tours...)
		merged.Unassigned = append(merged.Unassigned, sol.Unassigned...)
	}
	if len(merged.Tours) == 0 {
		return model.Solution{}, ErrEmptyResponse
	}
	return merged, nil
}

func (c *Client) submit(ctx context.Context, problem model.RoutingProblem) (model.Solution, error) {
	body, err := json.Marshal(problem)
	if err != nil {
		return model.Solution{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Solution{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Solution{}, fmt.Errorf("optimizer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Solution{}, fmt.Errorf("optimizer: unexpected status %d", resp.StatusCode)
	}

	var sol model.Solution
	if err := json.NewDecoder(resp.Body).Decode(&sol); err != nil {
		return model.Solution{}, fmt.Errorf("decode optimizer response: %w", err)
	}
	if err := validateSolution(sol); err != nil {
		return model.Solution{}, err
	}
	return sol, nil
}

// validateSolution rejects malformed response shapes at the boundary
// instead of trusting the external service.
func validateSolution(sol model.Solution) error {
	for i, t := range sol.Tours {
		if len(t.Stops) == 0 {
			return fmt.Errorf("optimizer: tour %d has no stops", i)
		}
	}
	for _, u := range sol.Unassigned {
		if _, err := OrderIDFromJobID(u.JobID); err != nil {
			return fmt.Errorf("optimizer: unparseable unassigned job: %w", err)
		}
	}
	return nil
}
