package ports

import (
	"context"
	"dispatch-route-service/internal/domain"
)

// Port: the backend that persists route sequences.
// Every write carries the full (technician, order, sequence, forecast) tuple.
type SequenceBackend interface {
	// Return the persisted route for a technician and forecast date.
	ListSequence(ctx context.Context, key domain.RouteKey) ([]domain.SequenceEntry, error)
	AddOrder(ctx context.Context, e domain.SequenceEntry) error
	RemoveOrder(ctx context.Context, e domain.SequenceEntry) error
	UpdateSequence(ctx context.Context, e domain.SequenceEntry) error
}
