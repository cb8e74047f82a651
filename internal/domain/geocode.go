package domain

// EntryState is the resolution state of one order in the geocode cache.
type EntryState string

const (
	StatePending  EntryState = "pending"
	StateResolved EntryState = "resolved"
	StateFailed   EntryState = "failed"
)

// GeocodeResult is a resolved coordinate for one order. Results outside the
// configured region are kept and flagged, never dropped.
type GeocodeResult struct {
	OrderID       string      `json:"orderId"`
	Coordinates   Coordinates `json:"coordinates"`
	DisplayName   string      `json:"displayName,omitempty"`
	OutsideRegion bool        `json:"outsideRegion"`
}

// GeocodeEntry is the cached state for one order.
// Result is set only when State is resolved; Err only when failed.
type GeocodeEntry struct {
	OrderID string
	State   EntryState
	Result  *GeocodeResult
	Err     error
}

func (e GeocodeEntry) Resolved() bool { return e.State == StateResolved && e.Result != nil }
