package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"tourplan/internal/model"
)

// Memory is the in-memory Store used by tests and when no DATABASE_URL
// is set. Transactional methods are atomic under the mutex.
type Memory struct {
	mu         sync.Mutex
	orders     map[int64]model.Order
	warehouses map[int64]model.Warehouse
	tours      map[int64]model.DynamicTour
	segments   map[int64][]model.RouteSegment
	nextTourID int64
}

func NewMemory() *Memory {
	return &Memory{
		orders:     map[int64]model.Order{},
		warehouses: map[int64]model.Warehouse{},
		tours:      map[int64]model.DynamicTour{},
		segments:   map[int64][]model.RouteSegment{},
	}
}

// SeedWarehouse and SeedOrders load fixture data, standing in for the
// upstream sync process.
func (m *Memory) SeedWarehouse(w model.Warehouse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warehouses[w.ID] = w
}

func (m *Memory) SeedOrders(orders ...model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		if o.Status == "" {
			o.Status = model.OrderStatusInitial
		}
		m.orders[o.ID] = o
	}
}

func (m *Memory) GetActiveWarehousesWithVehicles(ctx context.Context) ([]model.Warehouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Warehouse, 0, len(m.warehouses))
	for _, w := range m.warehouses {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetWarehouse(ctx context.Context, id int64) (model.Warehouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.warehouses[id]
	if !ok {
		return model.Warehouse{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) GetPendingOrders(ctx context.Context, since *time.Time) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.Status == model.OrderStatusInitial || o.Status == model.OrderStatusUnassigned {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetOrdersByIDs(ctx context.Context, ids []int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, ids []int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateStatusLocked(ids, status)
	return nil
}

func (m *Memory) updateStatusLocked(ids []int64, status string) {
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			o.Status = status
			m.orders[id] = o
		}
	}
}

func (m *Memory) PersistTour(ctx context.Context, rec TourRecord) (model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// same route payload shape as the Postgres store
	routeJSON, err := json.Marshal(map[string]any{
		"tour":     rec.Tour,
		"geometry": rec.Geometry,
	})
	if err != nil {
		return model.DynamicTour{}, err
	}

	m.nextTourID++
	id := m.nextTourID
	t := model.DynamicTour{
		ID:          id,
		TourNumber:  fmt.Sprintf("T-%06d", id),
		WarehouseID: rec.WarehouseID,
		VehicleID:   rec.VehicleID,
		RouteJSON:   routeJSON,
		OrderIDs:    append([]int64(nil), rec.AssignedOrderIDs...),
		Status:      model.TourStatusPending,
		CreatedAt:   time.Now(),
	}
	m.tours[id] = t
	m.segments[id] = append([]model.RouteSegment(nil), rec.Segments...)
	m.updateStatusLocked(rec.AssignedOrderIDs, model.OrderStatusAssigned)
	m.updateStatusLocked(rec.UnassignedOrderIDs, model.OrderStatusUnassigned)
	return t, nil
}

func (m *Memory) UpdateTourOrders(ctx context.Context, tourID int64, orderIDs []int64) (model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[tourID]
	if !ok {
		return model.DynamicTour{}, ErrNotFound
	}
	removed, added := diffIDs(t.OrderIDs, orderIDs)
	m.updateStatusLocked(removed, model.OrderStatusUnassigned)
	m.updateStatusLocked(added, model.OrderStatusAssigned)
	t.OrderIDs = append([]int64(nil), orderIDs...)
	m.tours[tourID] = t
	return t, nil
}

func (m *Memory) GetTour(ctx context.Context, id int64) (model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return model.DynamicTour{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTours(ctx context.Context, warehouseID int64) ([]model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DynamicTour
	for _, t := range m.tours {
		if warehouseID <= 0 || t.WarehouseID == warehouseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) GetTourSegments(ctx context.Context, tourID int64) ([]model.RouteSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RouteSegment(nil), m.segments[tourID]...), nil
}

func (m *Memory) ApproveTour(ctx context.Context, id int64, approvedBy string) (model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return model.DynamicTour{}, ErrNotFound
	}
	now := time.Now()
	t.Status = model.TourStatusApproved
	t.ApprovedBy = approvedBy
	t.ApprovedAt = &now
	m.tours[id] = t
	return t, nil
}

func (m *Memory) RejectTour(ctx context.Context, id int64, reason string) (model.DynamicTour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return model.DynamicTour{}, ErrNotFound
	}
	t.Status = model.TourStatusRejected
	t.RejectReason = reason
	m.tours[id] = t
	return t, nil
}
