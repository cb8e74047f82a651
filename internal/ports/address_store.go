package ports

import (
	"context"
	"dispatch-route-service/internal/domain"
)

// Port: persistent address -> coordinate mappings that outlive a session.
// Keys are normalized addresses.
type AddressStore interface {
	GetMany(ctx context.Context, addresses []string) (map[string]StoredAddress, error)
	PutMany(ctx context.Context, results map[string]StoredAddress) error
}

// A previously resolved address.
type StoredAddress struct {
	Coordinates domain.Coordinates
	DisplayName string
}
