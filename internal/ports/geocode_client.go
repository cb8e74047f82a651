package ports

import "context"

// One address to resolve, keyed by the order it belongs to.
type AddressRequest struct {
	OrderID string `json:"orderId"`
	Address string `json:"address"`
}

// Resolution of one AddressRequest. Either Err is set, or Lat/Lng are.
type AddressResult struct {
	OrderID     string
	Lat         *float64
	Lng         *float64
	DisplayName string
	Err         error
}

// Contract for resolving many addresses in a single provider round-trip.
type GeocodeClient interface {
	// Resolve every request with one network call. Failures, including a
	// failure of the whole call, are reported per item and never returned
	// as a Go error. Result order is not guaranteed; re-key by OrderID.
	ResolveBatch(ctx context.Context, reqs []AddressRequest) []AddressResult
}
