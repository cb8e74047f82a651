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
	availableTechniciansPath = "/api/orders/technicians/available"
	technicianOrdersPath     = "/api/orders/technicians"
)

type bucketsBody struct {
	InProgress []domain.ServiceOrder `json:"inProgress"`
	Today      []domain.ServiceOrder `json:"today"`
	Tomorrow   []domain.ServiceOrder `json:"tomorrow"`
	Future     []domain.ServiceOrder `json:"future"`
}

func (c *Client) ListAvailableTechnicians(ctx context.Context) (_ []domain.Technician, err error) {
	defer obs.Time(ctx, "backend.ListAvailableTechnicians")(&err)
	start := time.Now()
	defer func() { observe("technicians_available", start, err) }()

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, availableTechniciansPath, nil)
	})
	if err != nil {
		return nil, classify("list technicians", err, domain.ErrNetwork)
	}

	techs := []domain.Technician{}
	if err := decode(resp, "list technicians", &techs, domain.ErrNetwork); err != nil {
		return nil, err
	}

	return techs, nil
}

// TechnicianOrders fetches the four buckets of one technician. Missing or
// null buckets become empty slices.
func (c *Client) TechnicianOrders(ctx context.Context, technician string) (_ domain.Buckets, err error) {
	defer obs.Time(ctx, "backend.TechnicianOrders")(&err)
	start := time.Now()
	defer func() { observe("technician_orders", start, err) }()

	path := technicianOrdersPath + "?technicianId=" + url.QueryEscape(technician)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return domain.Buckets{}, classify("technician orders", err, domain.ErrNetwork)
	}

	var body bucketsBody
	if err := decode(resp, "technician orders", &body, domain.ErrNetwork); err != nil {
		return domain.Buckets{}, err
	}

	b := domain.EmptyBuckets(technician)
	b.InProgress = append(b.InProgress, body.InProgress...)
	b.Today = append(b.Today, body.Today...)
	b.Tomorrow = append(b.Tomorrow, body.Tomorrow...)
	b.Future = append(b.Future, body.Future...)

	return b, nil
}
