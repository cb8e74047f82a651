package ports

import (
	"context"
	"dispatch-route-service/internal/domain"
)

// Port: read access to technicians and their bucketed orders.
type OrderSource interface {
	ListAvailableTechnicians(ctx context.Context) ([]domain.Technician, error)
	// Return the bucketed orders of one technician. A technician with no
	// orders yields an empty record, not an error.
	TechnicianOrders(ctx context.Context, technician string) (domain.Buckets, error)
}
