package cluster

import (
	"tourplan/internal/model"
)

// FitterConfig bounds a cluster to what one vehicle can serve in one
// shift: a weight window and a time window at an assumed average speed.
type FitterConfig struct {
	MinWeightKg     float64 `yaml:"min_weight_kg"`
	MaxWeightKg     float64 `yaml:"max_weight_kg"`
	TimeWindowHours float64 `yaml:"time_window_hours"`
	AvgSpeedKmh     float64 `yaml:"avg_speed_kmh"`
	ServiceTimeSec  int     `yaml:"service_time_sec"`
	MinOrders       int     `yaml:"min_orders"`
}

func DefaultFitterConfig() FitterConfig {
	return FitterConfig{
		MinWeightKg:     100,
		MaxWeightKg:     1000,
		TimeWindowHours: 8,
		AvgSpeedKmh:     30,
		ServiceTimeSec:  300,
		MinOrders:       3,
	}
}

func (c FitterConfig) Normalize() FitterConfig {
	d := DefaultFitterConfig()
	if c.MinWeightKg <= 0 {
		c.MinWeightKg = d.MinWeightKg
	}
	if c.MaxWeightKg <= 0 {
		c.MaxWeightKg = d.MaxWeightKg
	}
	if c.TimeWindowHours <= 0 {
		c.TimeWindowHours = d.TimeWindowHours
	}
	if c.AvgSpeedKmh <= 0 {
		c.AvgSpeedKmh = d.AvgSpeedKmh
	}
	if c.ServiceTimeSec <= 0 {
		c.ServiceTimeSec = d.ServiceTimeSec
	}
	if c.MinOrders <= 0 {
		c.MinOrders = d.MinOrders
	}
	return c
}

// FitResult partitions the input cluster. Fitted and Trimmed are
// disjoint and together equal the input order set.
type FitResult struct {
	Fitted  []model.Order
	Trimmed []model.Order
}

// Fitter trims a cluster until it satisfies the weight and duration
// windows, or defers it entirely.
type Fitter struct {
	cfg FitterConfig
}

func NewFitter(cfg FitterConfig) *Fitter {
	return &Fitter{cfg: cfg.Normalize()}
}

// Config exposes the normalized tunables.
func (f *Fitter) Config() FitterConfig { return f.cfg }

// Fit applies the weight check first, then the duration check. Trimmed
// orders are retained by the caller for a later, lower-priority pass.
func (f *Fitter) Fit(warehouse model.Warehouse, c model.Cluster) FitResult {
	fitted := make([]model.Order, len(c.Orders))
	copy(fitted, c.Orders)
	var trimmed []model.Order

	weight := sumWeight(fitted)

	// an underweight cluster is deferred whole, not fitted
	if weight < f.cfg.MinWeightKg {
		return FitResult{Trimmed: fitted}
	}

	// pop from the tail until the vehicle can carry the rest
	for weight > f.cfg.MaxWeightKg && len(fitted) > 0 {
		last := fitted[len(fitted)-1]
		fitted = fitted[:len(fitted)-1]
		trimmed = append(trimmed, last)
		weight -= last.WeightKg
	}

	// drop the farthest order until the tour fits the shift window
	windowSec := f.cfg.TimeWindowHours * 3600
	for len(fitted) >= f.cfg.MinOrders && f.EstimatedDurationSec(warehouse, fitted) > windowSec {
		idx := f.farthestIdx(warehouse, fitted)
		trimmed = append(trimmed, fitted[idx])
		fitted = append(fitted[:idx], fitted[idx+1:]...)
	}

	// a too-small or too-light remainder is not useful as a tour
	if len(fitted) < f.cfg.MinOrders ||
		sumWeight(fitted) < f.cfg.MinWeightKg ||
		f.EstimatedDurationSec(warehouse, fitted) > windowSec {
		trimmed = append(trimmed, fitted...)
		fitted = nil
	}

	return FitResult{Fitted: fitted, Trimmed: trimmed}
}

// EstimatedDurationSec approximates the round-trip duration: haversine
// travel at the configured average speed plus a fixed service time per
// stop. Real road constraints are only applied later by the optimizer.
func (f *Fitter) EstimatedDurationSec(warehouse model.Warehouse, orders []model.Order) float64 {
	if len(orders) == 0 {
		return 0
	}
	travelM := HaversineMeters(warehouse.Location, orders[0].Location)
	for i := 1; i < len(orders); i++ {
		travelM += HaversineMeters(orders[i-1].Location, orders[i].Location)
	}
	travelM += HaversineMeters(orders[len(orders)-1].Location, warehouse.Location)

	speedMS := f.cfg.AvgSpeedKmh * 1000 / 3600
	return travelM/speedMS + float64(len(orders)*f.cfg.ServiceTimeSec)
}

func (f *Fitter) farthestIdx(warehouse model.Warehouse, orders []model.Order) int {
	idx := 0
	best := HaversineMeters(warehouse.Location, orders[0].Location)
	for i := 1; i < len(orders); i++ {
		if d := HaversineMeters(warehouse.Location, orders[i].Location); d > best {
			best = d
			idx = i
		}
	}
	return idx
}

func sumWeight(orders []model.Order) float64 {
	var w float64
	for _, o := range orders {
		w += o.WeightKg
	}
	return w
}
