package batch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tourplan/internal/cluster"
	"tourplan/internal/metrics"
	"tourplan/internal/model"
	"tourplan/internal/optimizer"
	"tourplan/internal/store"
)

// Solver submits a fitted cluster to the external route optimizer.
type Solver interface {
	Solve(ctx context.Context, warehouse model.Warehouse, cl model.Cluster) (model.Solution, error)
}

// RouteDecoder turns an optimizer tour into drivable geometry.
type RouteDecoder interface {
	TourGeometry(ctx context.Context, tour model.Tour) ([]model.GeoPoint, []model.RouteSegment, error)
}

// Result summarizes one pipeline run. Per-cluster failures are counted,
// not fatal; only a failed warehouse or order fetch aborts the run.
type Result struct {
	Warehouses int
	Clusters   int
	Tours      int
	Trimmed    int
	Failures   int
}

// Pipeline wires clustering, constraint fitting, optimization, route
// decoding and persistence into one batch pass.
type Pipeline struct {
	store     store.Store
	clusterer cluster.Strategy
	fitter    *cluster.Fitter
	solver    Solver
	decoder   RouteDecoder
	log       zerolog.Logger

	// TwoOptIterations bounds the pre-submission sequence improvement.
	TwoOptIterations int
}

func NewPipeline(st store.Store, clusterer cluster.Strategy, fitter *cluster.Fitter, solver Solver, decoder RouteDecoder, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:            st,
		clusterer:        clusterer,
		fitter:           fitter,
		solver:           solver,
		decoder:          decoder,
		log:              log.With().Str("component", "batch_pipeline").Logger(),
		TwoOptIterations: 3,
	}
}

// Run adapts ProcessBatch to the scheduler's callback shape.
func (p *Pipeline) Run(ctx context.Context, orderIDs []int64) error {
	_, err := p.ProcessBatch(ctx, orderIDs)
	return err
}

// ProcessBatch runs one full pass. With orderIDs it restricts the run
// to those orders; with an empty slice every pending order is picked up.
func (p *Pipeline) ProcessBatch(ctx context.Context, orderIDs []int64) (Result, error) {
	var res Result

	warehouses, err := p.store.GetActiveWarehousesWithVehicles(ctx)
	if err != nil {
		return res, fmt.Errorf("load warehouses: %w", err)
	}

	var orders []model.Order
	if len(orderIDs) > 0 {
		orders, err = p.store.GetOrdersByIDs(ctx, orderIDs)
	} else {
		orders, err = p.store.GetPendingOrders(ctx, nil)
	}
	if err != nil {
		return res, fmt.Errorf("load orders: %w", err)
	}

	byWarehouse := map[int64][]model.Order{}
	for _, o := range orders {
		if o.Status != model.OrderStatusInitial && o.Status != model.OrderStatusUnassigned {
			continue
		}
		byWarehouse[o.WarehouseID] = append(byWarehouse[o.WarehouseID], o)
	}

	for _, wh := range warehouses {
		pending := byWarehouse[wh.ID]
		delete(byWarehouse, wh.ID)
		if len(pending) == 0 {
			continue
		}
		if len(wh.Vehicles) == 0 {
			p.log.Warn().Int64("warehouse_id", wh.ID).Int("orders", len(pending)).Msg("warehouse has no vehicles, orders stay pending")
			continue
		}
		res.Warehouses++
		p.processWarehouse(ctx, wh, pending, &res)
	}
	for whID, orphaned := range byWarehouse {
		p.log.Warn().Int64("warehouse_id", whID).Int("orders", len(orphaned)).Msg("orders reference an inactive warehouse")
	}

	p.log.Info().
		Int("warehouses", res.Warehouses).
		Int("clusters", res.Clusters).
		Int("tours", res.Tours).
		Int("trimmed", res.Trimmed).
		Int("failures", res.Failures).
		Msg("batch pass complete")
	return res, nil
}

// processWarehouse clusters and fits the warehouse's pending orders,
// gives trimmed orders one lower-priority second pass, then submits
// every fitted cluster. A failing cluster is logged and skipped.
func (p *Pipeline) processWarehouse(ctx context.Context, wh model.Warehouse, orders []model.Order, res *Result) {
	fitted, trimmed := p.clusterAndFit(wh, orders, model.TierFirstPass)

	if len(trimmed) >= p.fitter.Config().MinOrders {
		refitted, left := p.clusterAndFit(wh, trimmed, model.TierReprocess)
		fitted = append(fitted, refitted...)
		trimmed = left
	}
	res.Trimmed += len(trimmed)

	for _, cl := range fitted {
		res.Clusters++
		if err := p.handleCluster(ctx, wh, cl); err != nil {
			res.Failures++
			p.log.Error().Err(err).
				Int64("warehouse_id", wh.ID).
				Str("tier", cl.Tier).
				Int("orders", len(cl.Orders)).
				Msg("cluster submission failed, orders stay pending")
			continue
		}
		res.Tours++
	}
}

func (p *Pipeline) clusterAndFit(wh model.Warehouse, orders []model.Order, tier string) ([]model.Cluster, []model.Order) {
	clusters := p.clusterer.Cluster(wh, orders, tier)
	metrics.ClustersBuilt.WithLabelValues(tier).Add(float64(len(clusters)))

	var fitted []model.Cluster
	var trimmed []model.Order
	for _, cl := range clusters {
		fit := p.fitter.Fit(wh, cl)
		if len(fit.Fitted) > 0 {
			fitted = append(fitted, model.Cluster{Orders: fit.Fitted, Tier: tier})
		}
		trimmed = append(trimmed, fit.Trimmed...)
	}
	return fitted, trimmed
}

// handleCluster runs one cluster end to end: 2-opt warm start,
// optimizer submission, per-tour route decoding, persistence.
func (p *Pipeline) handleCluster(ctx context.Context, wh model.Warehouse, cl model.Cluster) error {
	cl.Orders = cluster.ImproveOrderSequence(wh.Location, cl.Orders, p.TwoOptIterations)

	sol, err := p.solver.Solve(ctx, wh, cl)
	if err != nil {
		metrics.OptimizerCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("solve: %w", err)
	}
	metrics.OptimizerCalls.WithLabelValues("ok").Inc()

	unassigned := make([]int64, 0, len(sol.Unassigned))
	for _, u := range sol.Unassigned {
		id, err := optimizer.OrderIDFromJobID(u.JobID)
		if err != nil {
			return fmt.Errorf("unassigned job: %w", err)
		}
		unassigned = append(unassigned, id)
	}

	for i, tour := range sol.Tours {
		rec := store.TourRecord{
			WarehouseID:      wh.ID,
			VehicleID:        tour.VehicleID,
			Tour:             tour,
			AssignedOrderIDs: tourOrderIDs(tour),
		}
		// the cluster's unassigned leftovers ride the last tour's
		// transaction so statuses and tours always land together
		if i == len(sol.Tours)-1 {
			rec.UnassignedOrderIDs = unassigned
		}
		geometry, segments, err := p.decoder.TourGeometry(ctx, tour)
		if err != nil {
			// a tour without drivable geometry is still dispatchable
			p.log.Warn().Err(err).Int64("warehouse_id", wh.ID).Msg("route decoding failed, persisting tour without geometry")
		} else {
			rec.Geometry = geometry
			rec.Segments = segments
		}

		if _, err := p.store.PersistTour(ctx, rec); err != nil {
			metrics.ToursPersisted.WithLabelValues("error").Inc()
			return fmt.Errorf("persist tour: %w", err)
		}
		metrics.ToursPersisted.WithLabelValues("ok").Inc()
	}
	return nil
}

// DynamicTourResult carries everything a dispatcher needs back from a
// manual tour request: the optimizer's tour, the jobs it could not
// place (with their reasons), and the persisted record.
type DynamicTourResult struct {
	Tour        model.Tour         `json:"tour"`
	Unassigned  []model.Unassigned `json:"unassigned,omitempty"`
	DynamicTour model.DynamicTour  `json:"dynamicTour"`
}

// CreateDynamicTour builds one tour from a dispatcher-chosen order set,
// bypassing clustering and constraint fitting.
func (p *Pipeline) CreateDynamicTour(ctx context.Context, warehouseID int64, orderIDs []int64) (DynamicTourResult, error) {
	wh, err := p.store.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return DynamicTourResult{}, fmt.Errorf("load warehouse: %w", err)
	}
	orders, err := p.store.GetOrdersByIDs(ctx, orderIDs)
	if err != nil {
		return DynamicTourResult{}, fmt.Errorf("load orders: %w", err)
	}
	if len(orders) != len(orderIDs) {
		return DynamicTourResult{}, fmt.Errorf("%w: %d of %d orders", store.ErrNotFound, len(orders), len(orderIDs))
	}

	cl := model.Cluster{Orders: cluster.ImproveOrderSequence(wh.Location, orders, p.TwoOptIterations), Tier: model.TierFirstPass}
	sol, err := p.solver.Solve(ctx, wh, cl)
	if err != nil {
		metrics.OptimizerCalls.WithLabelValues("error").Inc()
		return DynamicTourResult{}, fmt.Errorf("solve: %w", err)
	}
	metrics.OptimizerCalls.WithLabelValues("ok").Inc()

	tour := sol.Tours[0]
	rec := store.TourRecord{
		WarehouseID:      wh.ID,
		VehicleID:        tour.VehicleID,
		Tour:             tour,
		AssignedOrderIDs: tourOrderIDs(tour),
	}
	for _, u := range sol.Unassigned {
		if id, err := optimizer.OrderIDFromJobID(u.JobID); err == nil {
			rec.UnassignedOrderIDs = append(rec.UnassignedOrderIDs, id)
		}
	}
	if geometry, segments, err := p.decoder.TourGeometry(ctx, tour); err != nil {
		p.log.Warn().Err(err).Int64("warehouse_id", wh.ID).Msg("route decoding failed, persisting tour without geometry")
	} else {
		rec.Geometry = geometry
		rec.Segments = segments
	}

	created, err := p.store.PersistTour(ctx, rec)
	if err != nil {
		metrics.ToursPersisted.WithLabelValues("error").Inc()
		return DynamicTourResult{}, fmt.Errorf("persist tour: %w", err)
	}
	metrics.ToursPersisted.WithLabelValues("ok").Inc()
	return DynamicTourResult{Tour: tour, Unassigned: sol.Unassigned, DynamicTour: created}, nil
}

func tourOrderIDs(tour model.Tour) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, stop := range tour.Stops {
		for _, act := range stop.Activities {
			id, err := optimizer.OrderIDFromJobID(act.JobID)
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
