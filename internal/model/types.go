package model

import "time"

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Order type tags.
const (
	OrderTypeNormal   = "normal"
	OrderTypeUrgent   = "urgent"
	OrderTypeExchange = "exchange"
	OrderTypePickup   = "pickup"
)

// Order status transitions are the only mutation this core performs on orders.
// Orders are never deleted; cancellation is a status.
const (
	OrderStatusInitial     = "initial"
	OrderStatusAssigned    = "assigned"
	OrderStatusUnassigned  = "unassigned"
	OrderStatusInTransit   = "in_transit"
	OrderStatusDelivered   = "delivered"
	OrderStatusCancelled   = "cancelled"
	OrderStatusRescheduled = "rescheduled"
)

type Order struct {
	ID          int64    `json:"id"`
	WarehouseID int64    `json:"warehouseId"`
	Location    GeoPoint `json:"location"`
	WeightKg    float64  `json:"weightKg"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Street      string   `json:"street,omitempty"`
	City        string   `json:"city,omitempty"`
	Zipcode     string   `json:"zipcode,omitempty"`
}

type Vehicle struct {
	ID         int64   `json:"id"`
	License    string  `json:"license"`
	CapacityKg float64 `json:"capacityKg"`
	DriverID   int64   `json:"driverId,omitempty"`
}

// Warehouse is read-only from this core's perspective.
type Warehouse struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address,omitempty"`
	Location GeoPoint  `json:"location"`
	Vehicles []Vehicle `json:"vehicles,omitempty"`
}

// Cluster tiers distinguish the first clustering pass from the
// lower-priority reprocessing of trimmed orders.
const (
	TierFirstPass = "first_pass"
	TierReprocess = "reprocess"
)

// Cluster is an ephemeral group of orders proposed for one vehicle tour.
// It lives only inside a single batch run.
type Cluster struct {
	Orders []Order `json:"orders"`
	Tier   string  `json:"tier"`
}

func (c Cluster) WeightKg() float64 {
	var w float64
	for _, o := range c.Orders {
		w += o.WeightKg
	}
	return w
}

func (c Cluster) OrderIDs() []int64 {
	ids := make([]int64, len(c.Orders))
	for i, o := range c.Orders {
		ids[i] = o.ID
	}
	return ids
}

// RoutingProblem is the request shape submitted to the external optimizer.
// Built fresh per call, never persisted.
type RoutingProblem struct {
	Fleet Fleet `json:"fleet"`
	Plan  Plan  `json:"plan"`
}

type Fleet struct {
	Types []VehicleType `json:"types"`
}

type VehicleType struct {
	ID       string       `json:"id"`
	Profile  string       `json:"profile"`
	Costs    VehicleCosts `json:"costs"`
	Shifts   []Shift      `json:"shifts"`
	Capacity []int        `json:"capacity"`
	Amount   int          `json:"amount"`
}

type VehicleCosts struct {
	Fixed    float64 `json:"fixed"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
}

type Shift struct {
	Start ShiftSide `json:"start"`
	End   ShiftSide `json:"end"`
}

type ShiftSide struct {
	Time     string   `json:"time"`
	Location GeoPoint `json:"location"`
}

type Plan struct {
	Jobs []Job `json:"jobs"`
}

type Job struct {
	ID       string   `json:"id"`
	Location GeoPoint `json:"location"`
	DemandKg int      `json:"demandKg"`
	Duration int      `json:"duration"`
}

// Tour is the optimizer-produced stop sequence for one vehicle.
type Tour struct {
	VehicleID string        `json:"vehicleId"`
	TypeID    string        `json:"typeId"`
	Stops     []Stop        `json:"stops"`
	Statistic TourStatistic `json:"statistic"`
}

type Stop struct {
	Location   GeoPoint   `json:"location"`
	Arrival    time.Time  `json:"arrival"`
	Departure  time.Time  `json:"departure"`
	DistanceM  int        `json:"distanceM"`
	Activities []Activity `json:"activities"`
}

type Activity struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

type TourStatistic struct {
	DistanceM   int `json:"distanceM"`
	DurationSec int `json:"durationSec"`
	DrivingSec  int `json:"drivingSec"`
	ServingSec  int `json:"servingSec"`
	WaitingSec  int `json:"waitingSec"`
}

// Unassigned is a job the optimizer could not place, with machine-readable reasons.
type Unassigned struct {
	JobID   string   `json:"jobId"`
	Reasons []string `json:"reasons"`
}

// Solution is the parsed optimizer response.
type Solution struct {
	Tours      []Tour       `json:"tours"`
	Unassigned []Unassigned `json:"unassigned"`
}

// RouteSegment is one decoded driving leg between two consecutive stops.
type RouteSegment struct {
	Seq         int        `json:"seq"`
	DistanceM   int        `json:"distanceM"`
	DurationSec int        `json:"durationSec"`
	Polyline    string     `json:"polyline,omitempty"`
	Coordinates []GeoPoint `json:"coordinates,omitempty"`
}

// Dynamic tour statuses. Rejection is a status change with a reason, never a delete.
const (
	TourStatusPending  = "pending"
	TourStatusApproved = "approved"
	TourStatusRejected = "rejected"
)

// DynamicTour is the persisted tour record.
type DynamicTour struct {
	ID           int64      `json:"id"`
	TourNumber   string     `json:"tourNumber"`
	WarehouseID  int64      `json:"warehouseId"`
	VehicleID    string     `json:"vehicleId,omitempty"`
	RouteJSON    []byte     `json:"tourRoute,omitempty"`
	OrderIDs     []int64    `json:"orderIds"`
	Status       string     `json:"status"`
	RejectReason string     `json:"rejectReason,omitempty"`
	ApprovedBy   string     `json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
