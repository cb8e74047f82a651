package handlers

import (
	"dispatch-route-service/internal/api/dto"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/ports"
	"dispatch-route-service/internal/services"
	"log"
	"net/http"
)

// BoardHandler serves the technician board and the map.
type BoardHandler struct {
	Planner *services.Planner
	Source  ports.OrderSource
}

func (h *BoardHandler) Technicians(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	techs, err := h.Source.ListAvailableTechnicians(r.Context())
	if err != nil {
		writeServiceError(w, r, "list technicians", err)
		return
	}
	if techs == nil {
		techs = []domain.Technician{}
	}

	writeJSON(w, r, http.StatusOK, dto.TechniciansResponse{Technicians: techs})
}

// Board fetches missing technicians and returns one column each. Columns of
// technicians that failed to load come back unloaded, with the error.
func (h *BoardHandler) Board(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req dto.BoardRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cols, err := h.Planner.LoadBoard(r.Context(), req.Technicians)
	res := dto.BoardResponse{Columns: cols}
	if err != nil {
		log.Printf("board partially loaded: technicians=%d err=%v", len(req.Technicians), err)
		res.Error = err.Error()
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Map geocodes the orders and returns their clusters.
func (h *BoardHandler) Map(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req dto.MapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	clusters := h.Planner.MapView(r.Context(), req.Orders)
	services.SortClusters(clusters.InRegion)
	services.SortClusters(clusters.OutOfRegion)

	res := dto.MapResponse{
		InRegion:    clusters.InRegion,
		OutOfRegion: clusters.OutOfRegion,
		Unlocated:   clusters.Unlocated,
	}
	if box, ok := clusters.Viewport(); ok {
		res.Viewport = &box
	}

	writeJSON(w, r, http.StatusOK, res)
}
