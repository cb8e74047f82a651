package backend

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"net/http"
	"net/url"
	"time"
)

const (
	routeListPath   = "/api/route/technician-orders/"
	routeAddPath    = "/api/route/add-order"
	routeRemovePath = "/api/route/remove-order"
	routeUpdatePath = "/api/route/update-sequence"
)

// sequenceBody is the payload of every route write.
type sequenceBody struct {
	TechnicianID string `json:"technicianId"`
	OrderNumber  string `json:"orderNumber"`
	Sequence     int    `json:"sequence"`
	Forecast     string `json:"forecast"`
}

type routeItem struct {
	OrderNumber flexString `json:"orderNumber"`
	Sequence    int        `json:"sequence"`
}

// ListSequence returns the persisted route, sorted by sequence.
func (c *Client) ListSequence(ctx context.Context, key domain.RouteKey) (_ []domain.SequenceEntry, err error) {
	defer obs.Time(ctx, "backend.ListSequence")(&err)
	start := time.Now()
	defer func() { observe("route_list", start, err) }()

	path := routeListPath + url.PathEscape(key.TechnicianID) + "?forecast=" + url.QueryEscape(key.ForecastDate)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return nil, classify("list route", err, domain.ErrNetwork)
	}

	var items []routeItem
	if err := decode(resp, "list route", &items, domain.ErrNetwork); err != nil {
		return nil, err
	}

	entries := make([]domain.SequenceEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, domain.SequenceEntry{
			TechnicianID: key.TechnicianID,
			ForecastDate: key.ForecastDate,
			OrderID:      string(it.OrderNumber),
			Sequence:     it.Sequence,
		})
	}
	domain.SortEntries(entries)

	return entries, nil
}

func (c *Client) AddOrder(ctx context.Context, e domain.SequenceEntry) error {
	return c.writeSequence(ctx, http.MethodPost, routeAddPath, "route_add", e)
}

func (c *Client) RemoveOrder(ctx context.Context, e domain.SequenceEntry) error {
	return c.writeSequence(ctx, http.MethodDelete, routeRemovePath, "route_remove", e)
}

func (c *Client) UpdateSequence(ctx context.Context, e domain.SequenceEntry) error {
	return c.writeSequence(ctx, http.MethodPut, routeUpdatePath, "route_update", e)
}

// writeSequence sends one route write. Writes are never retried: a timed-out
// write may have been applied, so the caller must re-read instead.
func (c *Client) writeSequence(ctx context.Context, method, path, endpoint string, e domain.SequenceEntry) (err error) {
	defer obs.Time(ctx, "backend."+endpoint)(&err)
	start := time.Now()
	defer func() { observe(endpoint, start, err) }()

	body := sequenceBody{
		TechnicianID: e.TechnicianID,
		OrderNumber:  e.OrderID,
		Sequence:     e.Sequence,
		Forecast:     e.ForecastDate,
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return classify(endpoint, err, domain.ErrSequenceConflict)
	}

	resp, err := c.do(req)
	if err != nil {
		return classify(endpoint, err, domain.ErrSequenceConflict)
	}

	return decode(resp, endpoint, nil, domain.ErrSequenceConflict)
}
