package handlers

import (
	"dispatch-route-service/internal/api/dto"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/services"
	"net/http"
)

// RouteHandler exposes route reads and mutations for one session planner.
type RouteHandler struct {
	Planner *services.Planner
}

func (h *RouteHandler) key(req dto.RouteKeyRequest) domain.RouteKey {
	return h.Planner.Key(req.Technician, req.Forecast)
}

func routeResponse(key domain.RouteKey, entries []domain.SequenceEntry) dto.RouteResponse {
	if entries == nil {
		entries = []domain.SequenceEntry{}
	}
	return dto.RouteResponse{Technician: key.TechnicianID, Forecast: key.ForecastDate, Entries: entries}
}

// Get returns the confirmed route: GET /routes?technician=&forecast=
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	req := dto.RouteKeyRequest{
		Technician: r.URL.Query().Get("technician"),
		Forecast:   r.URL.Query().Get("forecast"),
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	key := h.key(req)
	entries, err := h.Planner.Route(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, "get route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, routeResponse(key, entries))
}

// Orders adds (POST) or removes (DELETE) one order.
func (h *RouteHandler) Orders(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodDelete) {
		return
	}

	if r.Method == http.MethodDelete {
		h.remove(w, r)
		return
	}

	var req dto.AddOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := h.key(req.RouteKeyRequest)
	entries, err := h.Planner.AddOrder(r.Context(), key, req.Order, req.Position)
	if err != nil {
		writeServiceError(w, r, "add order", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, routeResponse(key, entries))
}

func (h *RouteHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req dto.RemoveOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := h.key(req.RouteKeyRequest)
	entries, err := h.Planner.DeselectOrder(r.Context(), key, req.OrderNumber)
	if err != nil {
		writeServiceError(w, r, "remove order", err)
		return
	}

	writeJSON(w, r, http.StatusOK, routeResponse(key, entries))
}

// Move reorders one order: PUT /routes/orders/position
func (h *RouteHandler) Move(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPut) {
		return
	}

	var req dto.MoveOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := h.key(req.RouteKeyRequest)
	entries, err := h.Planner.MoveOrder(r.Context(), key, req.OrderNumber, req.Position)
	if err != nil {
		writeServiceError(w, r, "move order", err)
		return
	}

	writeJSON(w, r, http.StatusOK, routeResponse(key, entries))
}

// Select adds a whole cluster; per-order outcomes are returned as data.
func (h *RouteHandler) Select(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req dto.RouteOrdersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := h.key(req.RouteKeyRequest)
	cluster := domain.LocationCluster{Key: "selection", Orders: req.Orders}
	outcomes, err := h.Planner.SelectCluster(r.Context(), key, cluster)
	if err != nil {
		writeServiceError(w, r, "select cluster", err)
		return
	}

	res := dto.SelectClusterResponse{
		RouteResponse: routeResponse(key, h.Planner.View(key)),
		Outcomes:      make([]dto.SelectionOutcomeResponse, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		out := dto.SelectionOutcomeResponse{
			OrderNumber: o.OrderID,
			Added:       o.Added,
			Skipped:     o.Skipped,
			Sequence:    o.Sequence,
		}
		if o.Err != nil {
			out.Error = o.Err.Error()
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Bulk saves many orders at once.
func (h *RouteHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req dto.RouteOrdersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := h.key(req.RouteKeyRequest)
	result, err := h.Planner.SaveRoute(r.Context(), key, req.Orders)
	if err != nil {
		writeServiceError(w, r, "bulk save", err)
		return
	}

	res := dto.BulkSaveResponse{
		RouteResponse: routeResponse(key, h.Planner.View(key)),
		Saved:         result.Saved,
		Failed:        result.Failed,
		Skipped:       result.Skipped,
		Errors:        make(map[string]string, len(result.Errors)),
	}
	for id, e := range result.Errors {
		res.Errors[id] = e.Error()
	}

	writeJSON(w, r, http.StatusOK, res)
}
