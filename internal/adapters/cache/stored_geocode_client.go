package cache

import (
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"log"
)

// StoredGeocodeClient serves addresses resolved in earlier sessions from an
// AddressStore and sends only the misses to the wrapped client, in one call.
// Store failures degrade to a plain pass-through.
type StoredGeocodeClient struct {
	inner ports.GeocodeClient
	store ports.AddressStore
}

func NewStoredGeocodeClient(inner ports.GeocodeClient, store ports.AddressStore) *StoredGeocodeClient {
	return &StoredGeocodeClient{inner: inner, store: store}
}

func (c *StoredGeocodeClient) ResolveBatch(ctx context.Context, reqs []ports.AddressRequest) []ports.AddressResult {
	if len(reqs) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(reqs))
	for _, r := range reqs {
		addrs = append(addrs, r.Address)
	}

	stored, err := c.store.GetMany(ctx, addrs)
	if err != nil {
		log.Printf("req_id=%s op=geocode.store.lookup err=%v", obs.RequestID(ctx), err)
		stored = nil
	}

	out := make([]ports.AddressResult, 0, len(reqs))
	misses := make([]ports.AddressRequest, 0, len(reqs))
	for _, r := range reqs {
		hit, ok := stored[domain.NormalizeAddress(r.Address)]
		if !ok {
			misses = append(misses, r)
			continue
		}
		lat, lng := hit.Coordinates.Lat, hit.Coordinates.Lng
		out = append(out, ports.AddressResult{OrderID: r.OrderID, Lat: &lat, Lng: &lng, DisplayName: hit.DisplayName})
	}
	obs.AddressStoreHits.Add(float64(len(out)))

	if len(misses) == 0 {
		return out
	}

	addressOf := make(map[string]string, len(misses))
	for _, r := range misses {
		addressOf[r.OrderID] = domain.NormalizeAddress(r.Address)
	}

	fresh := c.inner.ResolveBatch(ctx, misses)

	toStore := map[string]ports.StoredAddress{}
	for _, res := range fresh {
		out = append(out, res)

		if res.Err != nil || res.Lat == nil || res.Lng == nil {
			continue
		}
		coords := domain.Coordinates{Lat: *res.Lat, Lng: *res.Lng}
		addr := addressOf[res.OrderID]
		if addr == "" || !coords.Valid() {
			continue
		}
		toStore[addr] = ports.StoredAddress{Coordinates: coords, DisplayName: res.DisplayName}
	}

	if len(toStore) > 0 {
		if err := c.store.PutMany(ctx, toStore); err != nil {
			log.Printf("req_id=%s op=geocode.store.save count=%d err=%v", obs.RequestID(ctx), len(toStore), err)
		}
	}

	return out
}
