package services

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"sync"
)

// GeocodeCache is the session's single source of coordinate truth, keyed by
// order ID. Entries move absent -> pending -> resolved|failed and are never
// evicted. Orders sharing a normalized address share one resolution.
//
// Requests only enqueue; Flush sends everything queued in one batch call.
// It is safe for concurrent use.
type GeocodeCache struct {
	client ports.GeocodeClient
	region domain.BoundingBox

	// applyMu is held from drain until the batch response is applied, so a
	// flush never drains while another flush is still applying.
	applyMu sync.Mutex

	mu        sync.Mutex
	entries   map[string]domain.GeocodeEntry
	queue     []ports.AddressRequest          // one item per normalized address
	waiting   map[string][]string             // address -> orders waiting on a queued or in-flight item
	byAddress map[string]domain.GeocodeResult // resolved addresses
	version   uint64
	closed    bool
}

func NewGeocodeCache(client ports.GeocodeClient, region domain.BoundingBox) *GeocodeCache {
	if region.IsZero() {
		region = domain.BrazilBounds
	}
	return &GeocodeCache{
		client:    client,
		region:    region,
		entries:   map[string]domain.GeocodeEntry{},
		waiting:   map[string][]string{},
		byAddress: map[string]domain.GeocodeResult{},
	}
}

// Request makes sure the order's coordinates are resolved or on their way.
// It never blocks on the network and returns the entry as it stands after
// the call.
func (c *GeocodeCache) Request(order domain.ServiceOrder) domain.GeocodeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.entries[order.ID]
	}

	if e, ok := c.entries[order.ID]; ok && e.State != domain.StateFailed {
		return e
	}

	addr := domain.NormalizeAddress(order.Address)
	if addr == "" {
		return c.setLocked(domain.GeocodeEntry{
			OrderID: order.ID,
			State:   domain.StateFailed,
			Err:     fmt.Errorf("geocode order %s: %w", order.ID, domain.ErrAddressMissing),
		})
	}

	if r, ok := c.byAddress[addr]; ok {
		r.OrderID = order.ID
		return c.setLocked(domain.GeocodeEntry{OrderID: order.ID, State: domain.StateResolved, Result: &r})
	}

	if _, ok := c.waiting[addr]; !ok {
		c.queue = append(c.queue, ports.AddressRequest{OrderID: order.ID, Address: addr})
	}
	c.waiting[addr] = append(c.waiting[addr], order.ID)

	return c.setLocked(domain.GeocodeEntry{OrderID: order.ID, State: domain.StatePending})
}

// RequestAll calls Request for every order.
func (c *GeocodeCache) RequestAll(orders []domain.ServiceOrder) {
	for _, o := range orders {
		c.Request(o)
	}
}

func (c *GeocodeCache) setLocked(e domain.GeocodeEntry) domain.GeocodeEntry {
	c.entries[e.OrderID] = e
	c.version++
	return e
}

// Flush sends every queued address in a single ResolveBatch call and applies
// all resulting transitions in one update. It returns the number of batch
// items sent; zero means nothing was queued.
func (c *GeocodeCache) Flush(ctx context.Context) int {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	if c.closed || len(c.queue) == 0 {
		c.mu.Unlock()
		return 0
	}
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	obs.GeocodeBatches.Inc()
	results := c.client.ResolveBatch(ctx, batch)

	byOrder := make(map[string]ports.AddressResult, len(results))
	for _, r := range results {
		byOrder[r.OrderID] = r
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		log.Printf("req_id=%s op=geocode.flush dropped=%d reason=closed", obs.RequestID(ctx), len(batch))
		return len(batch)
	}

	resolved, failed := 0, 0
	for _, item := range batch {
		res, ok := byOrder[item.OrderID]
		if !ok {
			res = ports.AddressResult{
				OrderID: item.OrderID,
				Err:     errors.New("no result returned"),
			}
		}
		entry := c.toEntry(res)

		if entry.State == domain.StateResolved {
			c.byAddress[item.Address] = *entry.Result
		}

		for _, id := range c.waiting[item.Address] {
			e := entry
			e.OrderID = id
			if e.Result != nil {
				r := *e.Result
				r.OrderID = id
				e.Result = &r
			}
			c.entries[id] = e

			if e.State == domain.StateResolved {
				resolved++
			} else {
				failed++
			}
		}
		delete(c.waiting, item.Address)
	}
	c.version++

	obs.GeocodeItems.WithLabelValues(string(domain.StateResolved)).Add(float64(resolved))
	obs.GeocodeItems.WithLabelValues(string(domain.StateFailed)).Add(float64(failed))
	log.Printf("req_id=%s op=geocode.flush items=%d resolved=%d failed=%d", obs.RequestID(ctx), len(batch), resolved, failed)

	return len(batch)
}

func (c *GeocodeCache) toEntry(res ports.AddressResult) domain.GeocodeEntry {
	fail := func(cause error) domain.GeocodeEntry {
		err := cause
		if !errors.Is(cause, domain.ErrGeocodeFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrGeocodeFailed, cause)
		}
		return domain.GeocodeEntry{
			OrderID: res.OrderID,
			State:   domain.StateFailed,
			Err:     fmt.Errorf("geocode order %s: %w", res.OrderID, err),
		}
	}

	if res.Err != nil {
		return fail(res.Err)
	}
	if res.Lat == nil || res.Lng == nil {
		return fail(errors.New("missing coordinates"))
	}

	coords := domain.Coordinates{Lat: *res.Lat, Lng: *res.Lng}
	if !coords.Valid() {
		return fail(fmt.Errorf("coordinates out of range (%v, %v)", coords.Lat, coords.Lng))
	}

	return domain.GeocodeEntry{
		OrderID: res.OrderID,
		State:   domain.StateResolved,
		Result: &domain.GeocodeResult{
			OrderID:       res.OrderID,
			Coordinates:   coords,
			DisplayName:   res.DisplayName,
			OutsideRegion: !c.region.Contains(coords),
		},
	}
}

// Get returns the entry for orderID and whether one exists.
func (c *GeocodeCache) Get(orderID string) (domain.GeocodeEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[orderID]
	return e, ok
}

// Snapshot returns a copy of every entry.
func (c *GeocodeCache) Snapshot() map[string]domain.GeocodeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]domain.GeocodeEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Version increases every time an update is applied.
func (c *GeocodeCache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Pending reports how many addresses are queued and not yet sent.
func (c *GeocodeCache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops the cache. Responses that arrive afterwards are ignored and
// new requests are not queued.
func (c *GeocodeCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.queue = nil
}
