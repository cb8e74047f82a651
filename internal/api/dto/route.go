package dto

import "dispatch-route-service/internal/domain"

// RouteKeyRequest names a route. An empty forecast means the next business day.
type RouteKeyRequest struct {
	Technician string `json:"technician" validate:"required"`
	Forecast   string `json:"forecast" validate:"omitempty,datetime=2006-01-02"`
}

type AddOrderRequest struct {
	RouteKeyRequest
	Order    domain.ServiceOrder `json:"order"`
	Position int                 `json:"position" validate:"gte=0"`
}

type RemoveOrderRequest struct {
	RouteKeyRequest
	OrderNumber string `json:"orderNumber" validate:"required"`
}

type MoveOrderRequest struct {
	RouteKeyRequest
	OrderNumber string `json:"orderNumber" validate:"required"`
	Position    int    `json:"position" validate:"gte=1"`
}

// RouteOrdersRequest carries several orders for one route (cluster select,
// bulk save).
type RouteOrdersRequest struct {
	RouteKeyRequest
	Orders []domain.ServiceOrder `json:"orders" validate:"required,min=1,dive"`
}

type RouteResponse struct {
	Technician string                 `json:"technician"`
	Forecast   string                 `json:"forecast"`
	Entries    []domain.SequenceEntry `json:"entries"`
}

type SelectionOutcomeResponse struct {
	OrderNumber string `json:"orderNumber"`
	Added       bool   `json:"added"`
	Skipped     bool   `json:"skipped"`
	Sequence    int    `json:"sequence,omitempty"`
	Error       string `json:"error,omitempty"`
}

type SelectClusterResponse struct {
	RouteResponse
	Outcomes []SelectionOutcomeResponse `json:"outcomes"`
}

type BulkSaveResponse struct {
	RouteResponse
	Saved   []string          `json:"saved"`
	Failed  []string          `json:"failed"`
	Skipped []string          `json:"skipped"`
	Errors  map[string]string `json:"errors"`
}
