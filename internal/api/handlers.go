package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tourplan/internal/model"
	"tourplan/internal/optimizer"
	"tourplan/internal/scheduler"
	"tourplan/internal/store"
)

// OrderEventsHandler accepts new-order announcements and hands them to
// the batch scheduler. Returns 202: the clustering run happens later.
func (s *Server) OrderEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	var evt scheduler.OrderEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid body", err.Error(), r.URL.Path)
		return
	}
	if evt.OrderID <= 0 {
		writeProblem(w, http.StatusBadRequest, "invalid body", "order_id required", r.URL.Path)
		return
	}
	if s.Scheduler == nil {
		writeProblem(w, http.StatusServiceUnavailable, "scheduler unavailable", "", r.URL.Path)
		return
	}
	if err := s.Scheduler.Enqueue(evt); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "queue full", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "buffered"})
}

// BatchRunHandler triggers a synchronous pipeline pass, optionally
// restricted to a set of order ids.
func (s *Server) BatchRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	var req struct {
		OrderIDs []int64 `json:"orderIds"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid body", err.Error(), r.URL.Path)
			return
		}
	}
	s.Broker.Publish(BatchEvent{Type: EventBatchStarted, Data: map[string]any{"orders": len(req.OrderIDs)}})
	res, err := s.Pipeline.ProcessBatch(r.Context(), req.OrderIDs)
	if err != nil {
		s.Broker.Publish(BatchEvent{Type: EventBatchFailed, Data: map[string]any{"error": err.Error()}})
		writeProblem(w, http.StatusInternalServerError, "batch failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(BatchEvent{Type: EventBatchFinished, Data: map[string]any{"tours": res.Tours}})
	writeJSON(w, http.StatusOK, map[string]any{
		"warehouses": res.Warehouses,
		"clusters":   res.Clusters,
		"tours":      res.Tours,
		"trimmed":    res.Trimmed,
		"failures":   res.Failures,
	})
}

// DynamicTourHandler builds one tour from a dispatcher-chosen order set.
func (s *Server) DynamicTourHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	var req struct {
		WarehouseID int64   `json:"warehouseId"`
		OrderIDs    []int64 `json:"orderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid body", err.Error(), r.URL.Path)
		return
	}
	if req.WarehouseID <= 0 || len(req.OrderIDs) == 0 {
		writeProblem(w, http.StatusBadRequest, "invalid body", "warehouseId and orderIds required", r.URL.Path)
		return
	}
	res, err := s.Pipeline.CreateDynamicTour(r.Context(), req.WarehouseID, req.OrderIDs)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeProblem(w, http.StatusNotFound, "not found", err.Error(), r.URL.Path)
		case errors.Is(err, optimizer.ErrEmptyResponse):
			writeProblem(w, http.StatusUnprocessableEntity, "no feasible tour", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusBadGateway, "tour creation failed", err.Error(), r.URL.Path)
		}
		return
	}
	s.Broker.Publish(BatchEvent{Type: EventTourCreated, Data: map[string]any{
		"tourId":     res.DynamicTour.ID,
		"unassigned": len(res.Unassigned),
	}})
	writeJSON(w, http.StatusCreated, res)
}

// ToursHandler lists persisted tours, optionally per warehouse.
func (s *Server) ToursHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
		return
	}
	var warehouseID int64
	if v := r.URL.Query().Get("warehouseId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid warehouseId", err.Error(), r.URL.Path)
			return
		}
		warehouseID = id
	}
	tours, err := s.Store.ListTours(r.Context(), warehouseID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "list tours", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tours": tours})
}

// TourByIDHandler dispatches /v1/tours/{id} and its sub-resources:
// GET for details, POST {id}/approve and {id}/reject, PUT {id}/orders.
func (s *Server) TourByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tours/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid tour id", "", r.URL.Path)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTour(w, r, id)
	case action == "approve" && r.Method == http.MethodPost:
		s.approveTour(w, r, id)
	case action == "reject" && r.Method == http.MethodPost:
		s.rejectTour(w, r, id)
	case action == "orders" && r.Method == http.MethodPut:
		s.updateTourOrders(w, r, id)
	default:
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "", r.URL.Path)
	}
}

func (s *Server) getTour(w http.ResponseWriter, r *http.Request, id int64) {
	tour, err := s.Store.GetTour(r.Context(), id)
	if err != nil {
		s.tourError(w, r, err)
		return
	}
	segments, err := s.Store.GetTourSegments(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "load segments", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.DynamicTour
		Segments []model.RouteSegment `json:"segments"`
	}{tour, segments})
}

func (s *Server) approveTour(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		ApprovedBy string `json:"approvedBy"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	tour, err := s.Store.ApproveTour(r.Context(), id, req.ApprovedBy)
	if err != nil {
		s.tourError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

func (s *Server) rejectTour(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	tour, err := s.Store.RejectTour(r.Context(), id, req.Reason)
	if err != nil {
		s.tourError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

func (s *Server) updateTourOrders(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		OrderIDs []int64 `json:"orderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid body", err.Error(), r.URL.Path)
		return
	}
	tour, err := s.Store.UpdateTourOrders(r.Context(), id, req.OrderIDs)
	if err != nil {
		s.tourError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

func (s *Server) tourError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "tour not found", "", r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "store error", err.Error(), r.URL.Path)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
