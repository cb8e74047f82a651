package domain

import (
	"fmt"
	"slices"
	"time"
)

// ForecastLayout is the wire format of forecast dates.
const ForecastLayout = "2006-01-02"

// RouteKey identifies one technician's route for one forecast date.
type RouteKey struct {
	TechnicianID string `json:"technicianId"`
	ForecastDate string `json:"forecast"`
}

func (k RouteKey) String() string { return k.TechnicianID + "@" + k.ForecastDate }

// Validate checks that both parts are present and the date parses.
func (k RouteKey) Validate() error {
	if k.TechnicianID == "" {
		return fmt.Errorf("route key: technician must not be empty: %w", ErrInvalidPosition)
	}
	if _, err := time.Parse(ForecastLayout, k.ForecastDate); err != nil {
		return fmt.Errorf("route key: forecast %q: %w", k.ForecastDate, ErrInvalidPosition)
	}
	return nil
}

// SequenceEntry places one order at a 1-based position in a route.
type SequenceEntry struct {
	TechnicianID string `json:"technicianId"`
	ForecastDate string `json:"forecast"`
	OrderID      string `json:"orderNumber"`
	Sequence     int    `json:"sequence"`
}

func (e SequenceEntry) Key() RouteKey {
	return RouteKey{TechnicianID: e.TechnicianID, ForecastDate: e.ForecastDate}
}

// SortEntries orders entries by sequence, breaking ties by order ID so the
// result is deterministic even for malformed input.
func SortEntries(entries []SequenceEntry) {
	slices.SortStableFunc(entries, func(a, b SequenceEntry) int {
		if a.Sequence != b.Sequence {
			return a.Sequence - b.Sequence
		}
		if a.OrderID < b.OrderID {
			return -1
		}
		if a.OrderID > b.OrderID {
			return 1
		}
		return 0
	})
}

// CheckDense verifies that entries, sorted by sequence, are exactly 1..N with
// no gaps, duplicates or repeated orders.
func CheckDense(entries []SequenceEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Sequence != i+1 {
			return fmt.Errorf("check dense: position %d holds sequence %d: %w", i+1, e.Sequence, ErrInvariant)
		}
		if _, ok := seen[e.OrderID]; ok {
			return fmt.Errorf("check dense: order %q appears twice: %w", e.OrderID, ErrInvariant)
		}
		seen[e.OrderID] = struct{}{}
	}
	return nil
}

// Renumber assigns sequence = index+1 to every entry, in place.
func Renumber(entries []SequenceEntry) {
	for i := range entries {
		entries[i].Sequence = i + 1
	}
}

// IndexOf returns the slice index of orderID, or -1.
func IndexOf(entries []SequenceEntry, orderID string) int {
	for i, e := range entries {
		if e.OrderID == orderID {
			return i
		}
	}
	return -1
}

// Route event types published after confirmed mutations.
const (
	EventOrderAdded   = "route.order_added"
	EventOrderRemoved = "route.order_removed"
	EventOrderMoved   = "route.order_moved"
	EventRouteSaved   = "route.saved"
)

// RouteEvent announces a confirmed route change to other sessions.
type RouteEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	SessionID   string    `json:"sessionId"`
	Key         RouteKey  `json:"key"`
	OrderIDs    []string  `json:"orderIds,omitempty"`
	Technicians []string  `json:"technicians,omitempty"`
	At          time.Time `json:"at"`
}
