package store

import (
	"context"
	"errors"
	"time"

	"tourplan/internal/model"
)

var ErrNotFound = errors.New("not found")

// TourRecord bundles everything one finalized tour persists: the
// optimizer tour, the decoded geometry, and the order-id reconciliation
// sets. Assigned and Unassigned are disjoint and together equal the
// submitted cluster's order ids.
type TourRecord struct {
	WarehouseID        int64
	VehicleID          string
	Tour               model.Tour
	Geometry           []model.GeoPoint
	Segments           []model.RouteSegment
	AssignedOrderIDs   []int64
	UnassignedOrderIDs []int64
}

// Store is the persistence boundary of the clustering core. Orders and
// warehouses are produced upstream; this core only reads them and moves
// order statuses.
type Store interface {
	// Warehouses (read-only here)
	GetActiveWarehousesWithVehicles(ctx context.Context) ([]model.Warehouse, error)
	GetWarehouse(ctx context.Context, id int64) (model.Warehouse, error)

	// Orders
	GetPendingOrders(ctx context.Context, since *time.Time) ([]model.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, ids []int64, status string) error

	// Tours. PersistTour and UpdateTourOrders are transactional: either
	// the tour record, its segments and every order status land
	// together, or none of them do.
	PersistTour(ctx context.Context, rec TourRecord) (model.DynamicTour, error)
	UpdateTourOrders(ctx context.Context, tourID int64, orderIDs []int64) (model.DynamicTour, error)
	GetTour(ctx context.Context, id int64) (model.DynamicTour, error)
	ListTours(ctx context.Context, warehouseID int64) ([]model.DynamicTour, error)
	GetTourSegments(ctx context.Context, tourID int64) ([]model.RouteSegment, error)
	ApproveTour(ctx context.Context, id int64, approvedBy string) (model.DynamicTour, error)
	RejectTour(ctx context.Context, id int64, reason string) (model.DynamicTour, error)
}
