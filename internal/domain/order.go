package domain

import "strings"

// Represents a single field-service order as fetched from the dispatch backend.
// Orders are read-mostly copies: only the route position and the technician
// assignment change while the engine holds them.
type ServiceOrder struct {
	ID                string  `json:"orderNumber" validate:"required"`
	ClientName        string  `json:"clientName,omitempty"`
	Equipment         string  `json:"equipment,omitempty"`
	Address           string  `json:"address,omitempty"`
	ServiceType       string  `json:"serviceType,omitempty"`
	SLAHoursRemaining float64 `json:"slaRemainingHours,omitempty"`
	LinkedOrderID     string  `json:"linkedOrder,omitempty"`
	Technician        string  `json:"technician,omitempty"`
}

// NormalizeAddress collapses whitespace so equal addresses share one key.
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
