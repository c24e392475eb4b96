package optimizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"tourplan/internal/model"
)

// jobIDSep joins the job prefix and the order id inside optimizer job
// ids, and is what unassigned job ids are split on to recover the order.
const jobIDSep = "::"

// JobID derives the optimizer job id for an order.
func JobID(orderID int64) string {
	return "order" + jobIDSep + strconv.FormatInt(orderID, 10)
}

// OrderIDFromJobID recovers the order id from an optimizer job id.
func OrderIDFromJobID(jobID string) (int64, error) {
	parts := strings.Split(jobID, jobIDSep)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed job id %q", jobID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed job id %q: %w", jobID, err)
	}
	return id, nil
}

// BuildProblem translates a fitted cluster plus the warehouse's fleet
// into a routing problem. Orders without a resolved coordinate are
// geocoded from their street address with bounded concurrency; an order
// whose address cannot be resolved is skipped (logged by the caller via
// the returned skip list), the rest of the cluster proceeds.
func (c *Client) BuildProblem(ctx context.Context, warehouse model.Warehouse, cl model.Cluster) (model.RoutingProblem, []int64, error) {
	fleet := c.buildFleet(warehouse)
	jobs, skipped, err := c.buildJobs(ctx, cl)
	if err != nil {
		return model.RoutingProblem{}, nil, err
	}
	return model.RoutingProblem{Fleet: fleet, Plan: model.Plan{Jobs: jobs}}, skipped, nil
}

// buildFleet emits one vehicle type per vehicle at the warehouse, each
// with the configured shift window and linear cost model.
func (c *Client) buildFleet(warehouse model.Warehouse) model.Fleet {
	types := make([]model.VehicleType, 0, len(warehouse.Vehicles))
	for _, v := range warehouse.Vehicles {
		types = append(types, model.VehicleType{
			ID:      fmt.Sprintf("vehicle%s%d", jobIDSep, v.ID),
			Profile: "car",
			Costs: model.VehicleCosts{
				Fixed:    c.cfg.CostFixed,
				Distance: c.cfg.CostPerMeter,
				Time:     c.cfg.CostPerSecond,
			},
			Shifts: []model.Shift{{
				Start: model.ShiftSide{Time: c.cfg.ShiftStart, Location: warehouse.Location},
				End:   model.ShiftSide{Time: c.cfg.ShiftEnd, Location: warehouse.Location},
			}},
			Capacity: []int{int(v.CapacityKg)},
			Amount:   1,
		})
	}
	return model.Fleet{Types: types}
}

// buildJobs emits one job per order. Geocoding lookups run in a worker
// pool capped at GeocodeConcurrency so the external service is not
// overwhelmed; all lookups are joined before any result is used.
func (c *Client) buildJobs(ctx context.Context, cl model.Cluster) ([]model.Job, []int64, error) {
	jobs := make([]model.Job, len(cl.Orders))
	resolved := make([]bool, len(cl.Orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.GeocodeConcurrency)
	var mu sync.Mutex
	var skipped []int64

	for i, o := range cl.Orders {
		i, o := i, o
		g.Go(func() error {
			loc := o.Location
			if loc.Lat == 0 && loc.Lng == 0 {
				var err error
				loc, err = c.geocoder.Geocode(gctx, orderAddress(o))
				if err != nil {
					// unresolvable address: drop this job, keep the rest
					mu.Lock()
					skipped = append(skipped, o.ID)
					mu.Unlock()
					return nil
				}
			}
			jobs[i] = model.Job{
				ID:       JobID(o.ID),
				Location: loc,
				DemandKg: int(o.WeightKg),
				Duration: c.cfg.ServiceTimeSec,
			}
			resolved[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]model.Job, 0, len(jobs))
	for i, ok := range resolved {
		if ok {
			out = append(out, jobs[i])
		}
	}
	return out, skipped, nil
}

func orderAddress(o model.Order) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{o.Street, o.Zipcode, o.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
