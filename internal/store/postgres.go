package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tourplan/internal/model"
)

// Postgres implements Store on top of the relational schema owned by
// the upstream sync process. Orders and warehouses are written there;
// this side only reads them and writes tours, segments and statuses.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables this core owns. Dev helper; the
// order/warehouse tables belong to the upstream sync.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dynamic_tours (
			id BIGSERIAL PRIMARY KEY,
			tour_number TEXT NOT NULL UNIQUE,
			warehouse_id BIGINT NOT NULL,
			vehicle_id TEXT,
			tour_route JSONB,
			order_ids TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			reject_reason TEXT,
			approved_by TEXT,
			approved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS route_segments (
			id BIGSERIAL PRIMARY KEY,
			tour_id BIGINT NOT NULL REFERENCES dynamic_tours(id),
			seq INT NOT NULL,
			distance_m INT NOT NULL,
			duration_sec INT NOT NULL,
			polyline TEXT,
			coordinates JSONB
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) GetActiveWarehousesWithVehicles(ctx context.Context) ([]model.Warehouse, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, COALESCE(address,''), lat, lng FROM warehouses WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Warehouse
	for rows.Next() {
		var w model.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.Location.Lat, &w.Location.Lng); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		vs, err := p.vehiclesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Vehicles = vs
	}
	return out, nil
}

func (p *Postgres) vehiclesFor(ctx context.Context, warehouseID int64) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, license, capacity_kg, COALESCE(driver_id,0) FROM vehicles WHERE warehouse_id=$1 ORDER BY id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Vehicle
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.License, &v.CapacityKg, &v.DriverID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) GetWarehouse(ctx context.Context, id int64) (model.Warehouse, error) {
	var w model.Warehouse
	row := p.db.QueryRowContext(ctx, `SELECT id, name, COALESCE(address,''), lat, lng FROM warehouses WHERE id=$1`, id)
	if err := row.Scan(&w.ID, &w.Name, &w.Address, &w.Location.Lat, &w.Location.Lng); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return w, ErrNotFound
		}
		return w, err
	}
	vs, err := p.vehiclesFor(ctx, id)
	if err != nil {
		return w, err
	}
	w.Vehicles = vs
	return w, nil
}

func (p *Postgres) GetPendingOrders(ctx context.Context, since *time.Time) ([]model.Order, error) {
	q := `SELECT id, warehouse_id, COALESCE(lat,0), COALESCE(lng,0), weight_kg, type, status,
		COALESCE(street,''), COALESCE(city,''), COALESCE(zipcode,'')
		FROM orders WHERE status IN ($1,$2)`
	args := []any{model.OrderStatusInitial, model.OrderStatusUnassigned}
	if since != nil {
		q += ` AND created_at >= $3`
		args = append(args, *since)
	}
	q += ` ORDER BY id`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (p *Postgres) GetOrdersByIDs(ctx context.Context, ids []int64) ([]model.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, warehouse_id, COALESCE(lat,0), COALESCE(lng,0), weight_kg, type, status,
		COALESCE(street,''), COALESCE(city,''), COALESCE(zipcode,'')
		FROM orders WHERE id = ANY($1) ORDER BY id`, idArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.WarehouseID, &o.Location.Lat, &o.Location.Lng, &o.WeightKg,
			&o.Type, &o.Status, &o.Street, &o.City, &o.Zipcode); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, ids []int64, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$1 WHERE id = ANY($2)`, status, idArray(ids))
	return err
}

// PersistTour writes the tour record, its route segments and the order
// status reconciliation in one transaction. A tour is never partially
// persisted with inconsistent order statuses.
func (p *Postgres) PersistTour(ctx context.Context, rec TourRecord) (model.DynamicTour, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DynamicTour{}, err
	}
	defer func() { _ = tx.Rollback() }()

	routeJSON, err := json.Marshal(map[string]any{
		"tour":     rec.Tour,
		"geometry": rec.Geometry,
	})
	if err != nil {
		return model.DynamicTour{}, err
	}

	tourNumber := "T-" + uuid.NewString()[:8]
	var id int64
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`INSERT INTO dynamic_tours (tour_number, warehouse_id, vehicle_id, tour_route, order_ids, status)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		tourNumber, rec.WarehouseID, rec.VehicleID, routeJSON, joinIDs(rec.AssignedOrderIDs), model.TourStatusPending,
	).Scan(&id, &createdAt)
	if err != nil {
		return model.DynamicTour{}, fmt.Errorf("insert tour: %w", err)
	}

	for _, s := range rec.Segments {
		coords, err := json.Marshal(s.Coordinates)
		if err != nil {
			return model.DynamicTour{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO route_segments (tour_id, seq, distance_m, duration_sec, polyline, coordinates)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			id, s.Seq, s.DistanceM, s.DurationSec, s.Polyline, coords); err != nil {
			return model.DynamicTour{}, fmt.Errorf("insert segment %d: %w", s.Seq, err)
		}
	}

	if err := updateStatusTx(ctx, tx, rec.AssignedOrderIDs, model.OrderStatusAssigned); err != nil {
		return model.DynamicTour{}, err
	}
	if err := updateStatusTx(ctx, tx, rec.UnassignedOrderIDs, model.OrderStatusUnassigned); err != nil {
		return model.DynamicTour{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.DynamicTour{}, err
	}
	return model.DynamicTour{
		ID:          id,
		TourNumber:  tourNumber,
		WarehouseID: rec.WarehouseID,
		VehicleID:   rec.VehicleID,
		RouteJSON:   routeJSON,
		OrderIDs:    rec.AssignedOrderIDs,
		Status:      model.TourStatusPending,
		CreatedAt:   createdAt,
	}, nil
}

// UpdateTourOrders applies an edited order-id set. Orders removed from
// the tour are reverted to unassigned before the new set is applied.
func (p *Postgres) UpdateTourOrders(ctx context.Context, tourID int64, orderIDs []int64) (model.DynamicTour, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DynamicTour{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	if err := tx.QueryRowContext(ctx, `SELECT order_ids FROM dynamic_tours WHERE id=$1 FOR UPDATE`, tourID).Scan(&prev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DynamicTour{}, ErrNotFound
		}
		return model.DynamicTour{}, err
	}

	removed, added := diffIDs(splitIDs(prev), orderIDs)
	if err := updateStatusTx(ctx, tx, removed, model.OrderStatusUnassigned); err != nil {
		return model.DynamicTour{}, err
	}
	if err := updateStatusTx(ctx, tx, added, model.OrderStatusAssigned); err != nil {
		return model.DynamicTour{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE dynamic_tours SET order_ids=$1 WHERE id=$2`, joinIDs(orderIDs), tourID); err != nil {
		return model.DynamicTour{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.DynamicTour{}, err
	}
	return p.GetTour(ctx, tourID)
}

func (p *Postgres) GetTour(ctx context.Context, id int64) (model.DynamicTour, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, tour_number, warehouse_id, COALESCE(vehicle_id,''), tour_route, order_ids,
		status, COALESCE(reject_reason,''), COALESCE(approved_by,''), approved_at, created_at
		FROM dynamic_tours WHERE id=$1`, id)
	return scanTour(row)
}

func (p *Postgres) ListTours(ctx context.Context, warehouseID int64) ([]model.DynamicTour, error) {
	q := `SELECT id, tour_number, warehouse_id, COALESCE(vehicle_id,''), tour_route, order_ids,
		status, COALESCE(reject_reason,''), COALESCE(approved_by,''), approved_at, created_at
		FROM dynamic_tours`
	var rows *sql.Rows
	var err error
	if warehouseID > 0 {
		rows, err = p.db.QueryContext(ctx, q+` WHERE warehouse_id=$1 ORDER BY id DESC`, warehouseID)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DynamicTour
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTourSegments(ctx context.Context, tourID int64) ([]model.RouteSegment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT seq, distance_m, duration_sec, COALESCE(polyline,''), coordinates
		FROM route_segments WHERE tour_id=$1 ORDER BY seq`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RouteSegment
	for rows.Next() {
		var s model.RouteSegment
		var coords []byte
		if err := rows.Scan(&s.Seq, &s.DistanceM, &s.DurationSec, &s.Polyline, &coords); err != nil {
			return nil, err
		}
		if len(coords) > 0 {
			_ = json.Unmarshal(coords, &s.Coordinates)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ApproveTour(ctx context.Context, id int64, approvedBy string) (model.DynamicTour, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE dynamic_tours SET status=$1, approved_by=$2, approved_at=now() WHERE id=$3`,
		model.TourStatusApproved, approvedBy, id)
	if err != nil {
		return model.DynamicTour{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.DynamicTour{}, ErrNotFound
	}
	return p.GetTour(ctx, id)
}

func (p *Postgres) RejectTour(ctx context.Context, id int64, reason string) (model.DynamicTour, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE dynamic_tours SET status=$1, reject_reason=$2 WHERE id=$3`,
		model.TourStatusRejected, reason, id)
	if err != nil {
		return model.DynamicTour{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.DynamicTour{}, ErrNotFound
	}
	return p.GetTour(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(row rowScanner) (model.DynamicTour, error) {
	var t model.DynamicTour
	var orderIDs string
	var approvedAt sql.NullTime
	var route []byte
	if err := row.Scan(&t.ID, &t.TourNumber, &t.WarehouseID, &t.VehicleID, &route, &orderIDs,
		&t.Status, &t.RejectReason, &t.ApprovedBy, &approvedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.RouteJSON = route
	t.OrderIDs = splitIDs(orderIDs)
	if approvedAt.Valid {
		t.ApprovedAt = &approvedAt.Time
	}
	return t, nil
}

func updateStatusTx(ctx context.Context, tx *sql.Tx, ids []int64, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE orders SET status=$1 WHERE id = ANY($2)`, status, idArray(ids))
	if err != nil {
		return fmt.Errorf("update order status to %s: %w", status, err)
	}
	return nil
}

// idArray renders ids as a Postgres bigint array literal.
func idArray(ids []int64) string {
	return "{" + joinIDs(ids) + "}"
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// diffIDs returns the ids only in prev (removed) and only in next (added).
func diffIDs(prev, next []int64) (removed, added []int64) {
	inPrev := make(map[int64]bool, len(prev))
	for _, id := range prev {
		inPrev[id] = true
	}
	inNext := make(map[int64]bool, len(next))
	for _, id := range next {
		inNext[id] = true
	}
	for _, id := range prev {
		if !inNext[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range next {
		if !inPrev[id] {
			added = append(added, id)
		}
	}
	return removed, added
}
