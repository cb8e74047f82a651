package backend

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const geocodeBatchPath = "/api/geocode/batch"

type geocodeBatchRequest struct {
	Addresses []ports.AddressRequest `json:"addresses"`
}

type geocodeItem struct {
	OrderID     flexString `json:"orderId"`
	Lat         *flexFloat `json:"lat"`
	Lng         *flexFloat `json:"lng"`
	DisplayName string     `json:"display_name"`
	Error       string     `json:"error"`
}

// ResolveBatch sends every request with a non-empty address in one call to
// the backend batch endpoint. Items with an empty address fail locally with
// ErrAddressMissing. A failure of the whole call fails every sent item.
func (c *Client) ResolveBatch(ctx context.Context, reqs []ports.AddressRequest) []ports.AddressResult {
	out := make([]ports.AddressResult, 0, len(reqs))
	send := make([]ports.AddressRequest, 0, len(reqs))

	for _, r := range reqs {
		if strings.TrimSpace(r.Address) == "" {
			out = append(out, ports.AddressResult{OrderID: r.OrderID, Err: domain.ErrAddressMissing})
			continue
		}
		send = append(send, r)
	}

	if len(send) == 0 {
		return out
	}

	raw, err := c.geocodeBatch(ctx, send)
	if err != nil {
		for _, r := range send {
			out = append(out, ports.AddressResult{OrderID: r.OrderID, Err: err})
		}
		return out
	}

	byOrder := make(map[string]ports.AddressResult, len(raw))
	for _, item := range raw {
		if res, ok := parseGeocodeItem(item); ok {
			byOrder[res.OrderID] = res
		}
	}

	for _, r := range send {
		res, ok := byOrder[r.OrderID]
		if !ok {
			res = ports.AddressResult{
				OrderID: r.OrderID,
				Err:     fmt.Errorf("geocode %q: no result returned: %w", r.OrderID, domain.ErrGeocodeFailed),
			}
		}
		out = append(out, res)
	}

	return out
}

// geocodeBatch returns the undecoded items so one malformed item fails only
// its own order.
func (c *Client) geocodeBatch(ctx context.Context, send []ports.AddressRequest) (_ []json.RawMessage, err error) {
	defer obs.Time(ctx, "backend.geocodeBatch")(&err)
	start := time.Now()
	defer func() { observe("geocode_batch", start, err) }()

	req, err := c.newRequest(ctx, http.MethodPost, geocodeBatchPath, geocodeBatchRequest{Addresses: send})
	if err != nil {
		return nil, classify("geocode batch", err, domain.ErrGeocodeFailed)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, classify("geocode batch", err, domain.ErrGeocodeFailed)
	}

	var items []json.RawMessage
	if err := decode(resp, "geocode batch", &items, domain.ErrGeocodeFailed); err != nil {
		return nil, err
	}

	return items, nil
}

// parseGeocodeItem decodes one batch item. An item whose coordinates cannot
// be decoded fails that order only; ok is false when not even the order id
// can be read, and the order is then reported as missing from the response.
func parseGeocodeItem(raw json.RawMessage) (ports.AddressResult, bool) {
	var it geocodeItem
	if err := json.Unmarshal(raw, &it); err != nil {
		var id struct {
			OrderID flexString `json:"orderId"`
		}
		if json.Unmarshal(raw, &id) != nil || id.OrderID == "" {
			return ports.AddressResult{}, false
		}
		return ports.AddressResult{
			OrderID: string(id.OrderID),
			Err:     fmt.Errorf("geocode %q: decode item: %v: %w", id.OrderID, err, domain.ErrGeocodeFailed),
		}, true
	}
	if it.OrderID == "" {
		return ports.AddressResult{}, false
	}
	return toAddressResult(string(it.OrderID), it), true
}

func toAddressResult(orderID string, it geocodeItem) ports.AddressResult {
	res := ports.AddressResult{OrderID: orderID, DisplayName: it.DisplayName}

	if it.Error != "" {
		res.Err = fmt.Errorf("geocode %q: %s: %w", orderID, it.Error, domain.ErrGeocodeFailed)
		return res
	}
	if it.Lat == nil || it.Lng == nil {
		res.Err = fmt.Errorf("geocode %q: missing coordinates: %w", orderID, domain.ErrGeocodeFailed)
		return res
	}

	lat, lng := float64(*it.Lat), float64(*it.Lng)
	res.Lat = &lat
	res.Lng = &lng
	return res
}

// flexFloat accepts a JSON number or a numeric string, as geocoding
// providers commonly return coordinates as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return errors.New("null coordinate")
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("parse coordinate %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or number (order numbers are numeric in
// some backend versions).
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
