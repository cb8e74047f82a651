package ports

import (
	"context"
	"dispatch-route-service/internal/domain"
)

// Port: fan-out of confirmed route changes to other sessions.
type RouteEventPublisher interface {
	Publish(ctx context.Context, evt domain.RouteEvent) error
}
