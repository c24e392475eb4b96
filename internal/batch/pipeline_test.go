package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tourplan/internal/cluster"
	"tourplan/internal/model"
	"tourplan/internal/optimizer"
	"tourplan/internal/store"
)

// stubSolver answers every cluster with a single tour covering its
// orders, minus an optional unassignable set.
type stubSolver struct {
	failFor  map[int64]bool // warehouse ids that error
	unassign map[int64]bool // order ids reported unassigned
	calls    int
}

func (s *stubSolver) Solve(ctx context.Context, wh model.Warehouse, cl model.Cluster) (model.Solution, error) {
	s.calls++
	if s.failFor[wh.ID] {
		return model.Solution{}, errors.New("optimizer unavailable")
	}
	var sol model.Solution
	tour := model.Tour{VehicleID: "vehicle::1"}
	for _, o := range cl.Orders {
		if s.unassign[o.ID] {
			sol.Unassigned = append(sol.Unassigned, model.Unassigned{JobID: optimizer.JobID(o.ID), Reasons: []string{"MAX_LOAD_CONSTRAINT"}})
			continue
		}
		tour.Stops = append(tour.Stops, model.Stop{
			Location:   o.Location,
			Activities: []model.Activity{{Type: "delivery", JobID: optimizer.JobID(o.ID)}},
		})
	}
	sol.Tours = []model.Tour{tour}
	return sol, nil
}

type stubDecoder struct {
	fail  bool
	calls int
}

func (d *stubDecoder) TourGeometry(ctx context.Context, tour model.Tour) ([]model.GeoPoint, []model.RouteSegment, error) {
	d.calls++
	if d.fail {
		return nil, nil, errors.New("routing unavailable")
	}
	segs := make([]model.RouteSegment, 0, len(tour.Stops))
	for i := range tour.Stops {
		segs = append(segs, model.RouteSegment{Seq: i, DistanceM: 1000, DurationSec: 120})
	}
	return []model.GeoPoint{{Lat: 1, Lng: 1}}, segs, nil
}

func seedWarehouse(m *store.Memory, id int64) model.Warehouse {
	wh := model.Warehouse{
		ID:       id,
		Name:     "depot",
		Location: model.GeoPoint{Lat: 52.5, Lng: 13.4},
		Vehicles: []model.Vehicle{{ID: 1, CapacityKg: 1200}},
	}
	m.SeedWarehouse(wh)
	return wh
}

func seedOrders(m *store.Memory, whID int64, ids ...int64) {
	for i, id := range ids {
		m.SeedOrders(model.Order{
			ID:          id,
			WarehouseID: whID,
			WeightKg:    150,
			Location:    model.GeoPoint{Lat: 52.5, Lng: 13.4 + float64(i)*0.001},
		})
	}
}

func newTestPipeline(m *store.Memory, solver Solver, decoder RouteDecoder) *Pipeline {
	return NewPipeline(
		m,
		cluster.NewSectorClusterer(cluster.DefaultConfig()),
		cluster.NewFitter(cluster.DefaultFitterConfig()),
		solver,
		decoder,
		zerolog.Nop(),
	)
}

func TestProcessBatchEndToEnd(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1, 2, 3, 4)

	solver := &stubSolver{}
	decoder := &stubDecoder{}
	p := newTestPipeline(m, solver, decoder)

	res, err := p.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Warehouses)
	require.Equal(t, 1, res.Clusters)
	require.Equal(t, 1, res.Tours)
	require.Zero(t, res.Failures)

	tours, err := m.ListTours(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tours, 1)
	require.ElementsMatch(t, []int64{1, 2, 3, 4}, tours[0].OrderIDs)

	segs, err := m.GetTourSegments(context.Background(), tours[0].ID)
	require.NoError(t, err)
	require.Len(t, segs, 4)

	orders, err := m.GetOrdersByIDs(context.Background(), []int64{1, 2, 3, 4})
	require.NoError(t, err)
	for _, o := range orders {
		require.Equal(t, model.OrderStatusAssigned, o.Status)
	}
}

func TestProcessBatchClusterFailureIsolated(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 1)
	seedWarehouse(m, 2)
	seedOrders(m, 1, 1, 2, 3)
	seedOrders(m, 2, 11, 12, 13)

	solver := &stubSolver{failFor: map[int64]bool{1: true}}
	p := newTestPipeline(m, solver, &stubDecoder{})

	res, err := p.ProcessBatch(context.Background(), nil)
	require.NoError(t, err, "a failing cluster never aborts the run")
	require.Equal(t, 1, res.Failures)
	require.Equal(t, 1, res.Tours)

	// warehouse 1 orders stay pending for the next run
	orders, err := m.GetOrdersByIDs(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	for _, o := range orders {
		require.Equal(t, model.OrderStatusInitial, o.Status)
	}
}

// statusSpy watches for status updates issued outside the tour
// transaction.
type statusSpy struct {
	*store.Memory
	directUpdates int
}

func (s *statusSpy) UpdateOrderStatus(ctx context.Context, ids []int64, status string) error {
	s.directUpdates++
	return s.Memory.UpdateOrderStatus(ctx, ids, status)
}

func TestProcessBatchMarksUnassigned(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1, 2, 3, 4)
	spy := &statusSpy{Memory: m}

	solver := &stubSolver{unassign: map[int64]bool{4: true}}
	p := newTestPipeline(m, solver, &stubDecoder{})
	p.store = spy

	_, err := p.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)

	orders, err := m.GetOrdersByIDs(context.Background(), []int64{4})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusUnassigned, orders[0].Status)

	// the reversion rides the tour's own transaction
	require.Zero(t, spy.directUpdates)
}

func TestProcessBatchDecoderFailureStillPersists(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1, 2, 3)

	p := newTestPipeline(m, &stubSolver{}, &stubDecoder{fail: true})

	res, err := p.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Tours)

	tours, err := m.ListTours(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tours, 1)

	segs, err := m.GetTourSegments(context.Background(), tours[0].ID)
	require.NoError(t, err)
	require.Empty(t, segs, "tour persisted without geometry")
}

func TestProcessBatchSkipsVehiclelessWarehouse(t *testing.T) {
	m := store.NewMemory()
	m.SeedWarehouse(model.Warehouse{ID: 9, Location: model.GeoPoint{Lat: 52.5, Lng: 13.4}})
	seedOrders(m, 9, 1, 2, 3)

	solver := &stubSolver{}
	p := newTestPipeline(m, solver, &stubDecoder{})

	res, err := p.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, res.Warehouses)
	require.Zero(t, solver.calls)
}

// failingStore simulates the one fatal case: the source data itself is
// unreadable.
type failingStore struct {
	store.Store
}

func (failingStore) GetActiveWarehousesWithVehicles(ctx context.Context) ([]model.Warehouse, error) {
	return nil, errors.New("db down")
}

func TestProcessBatchAbortsOnWarehouseFetchError(t *testing.T) {
	p := newTestPipeline(store.NewMemory(), &stubSolver{}, &stubDecoder{})
	p.store = failingStore{}

	_, err := p.ProcessBatch(context.Background(), nil)
	require.ErrorContains(t, err, "load warehouses")
}

func TestCreateDynamicTour(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1, 2)

	p := newTestPipeline(m, &stubSolver{}, &stubDecoder{})

	res, err := p.CreateDynamicTour(context.Background(), 7, []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, res.DynamicTour.OrderIDs)
	require.Equal(t, model.TourStatusPending, res.DynamicTour.Status)
	require.Len(t, res.Tour.Stops, 2)
	require.Empty(t, res.Unassigned)

	orders, err := m.GetOrdersByIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusAssigned, orders[0].Status)
	require.Equal(t, model.OrderStatusAssigned, orders[1].Status)
}

func TestCreateDynamicTourReportsUnassigned(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1, 2, 3)

	p := newTestPipeline(m, &stubSolver{unassign: map[int64]bool{2: true}}, &stubDecoder{})

	res, err := p.CreateDynamicTour(context.Background(), 7, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, res.DynamicTour.OrderIDs)

	// the dispatcher sees which jobs could not be placed, and why
	require.Len(t, res.Unassigned, 1)
	require.Equal(t, optimizer.JobID(2), res.Unassigned[0].JobID)
	require.NotEmpty(t, res.Unassigned[0].Reasons)

	orders, err := m.GetOrdersByIDs(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusUnassigned, orders[0].Status)
}

func TestCreateDynamicTourUnknownOrder(t *testing.T) {
	m := store.NewMemory()
	seedWarehouse(m, 7)
	seedOrders(m, 7, 1)

	p := newTestPipeline(m, &stubSolver{}, &stubDecoder{})

	_, err := p.CreateDynamicTour(context.Background(), 7, []int64{1, 999})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateDynamicTourUnknownWarehouse(t *testing.T) {
	p := newTestPipeline(store.NewMemory(), &stubSolver{}, &stubDecoder{})
	_, err := p.CreateDynamicTour(context.Background(), 42, []int64{1})
	require.ErrorIs(t, err, store.ErrNotFound)
}
