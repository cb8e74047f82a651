package dto

import (
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/services"
)

type TechniciansResponse struct {
	Technicians []domain.Technician `json:"technicians"`
}

type BoardRequest struct {
	Technicians []string `json:"technicians" validate:"required,min=1,dive,required"`
}

type BoardResponse struct {
	Columns []services.BoardColumn `json:"columns"`
	// Set when some technicians could not be fetched; their columns are
	// returned unloaded.
	Error string `json:"error,omitempty"`
}

type MapRequest struct {
	Orders []domain.ServiceOrder `json:"orders" validate:"required,dive"`
}

type MapResponse struct {
	InRegion    []domain.LocationCluster `json:"inRegion"`
	OutOfRegion []domain.LocationCluster `json:"outOfRegion"`
	Unlocated   []domain.ServiceOrder    `json:"unlocated"`
	Viewport    *domain.BoundingBox      `json:"viewport,omitempty"`
}
