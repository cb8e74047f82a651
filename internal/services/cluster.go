package services

import (
	"dispatch-route-service/internal/domain"
	"fmt"
	"math"
	"slices"
	"strings"
)

// DefaultTolerance is the grid size in degrees (about 100 m).
const DefaultTolerance = 0.001

// EntryLookup returns the geocode entry of an order.
type EntryLookup func(orderID string) (domain.GeocodeEntry, bool)

// SnapshotLookup adapts a cache snapshot to an EntryLookup.
func SnapshotLookup(snapshot map[string]domain.GeocodeEntry) EntryLookup {
	return func(orderID string) (domain.GeocodeEntry, bool) {
		e, ok := snapshot[orderID]
		return e, ok
	}
}

// ClusterResult is the map-ready view of a set of orders.
type ClusterResult struct {
	InRegion    []domain.LocationCluster `json:"inRegion"`
	OutOfRegion []domain.LocationCluster `json:"outOfRegion"`
	// Orders without coordinates: failed, pending or never requested.
	Unlocated []domain.ServiceOrder `json:"unlocated"`
}

// Cluster groups orders whose resolved coordinates round to the same grid
// cell of size tolerance. Orders flagged outside the region are grouped
// separately and never merged with in-region ones.
//
// Two points closer than tolerance can still land in neighbouring cells when
// they straddle a cell boundary; that is accepted.
func Cluster(orders []domain.ServiceOrder, lookup EntryLookup, tolerance float64) ClusterResult {
	if tolerance <= 0 || math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		tolerance = DefaultTolerance
	}

	res := ClusterResult{
		InRegion:    []domain.LocationCluster{},
		OutOfRegion: []domain.LocationCluster{},
		Unlocated:   []domain.ServiceOrder{},
	}

	inIdx := map[string]int{}
	outIdx := map[string]int{}
	seen := make(map[string]struct{}, len(orders))

	for _, o := range orders {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}

		e, ok := lookup(o.ID)
		if !ok || !e.Resolved() {
			res.Unlocated = append(res.Unlocated, o)
			continue
		}

		latIdx := int64(math.Round(e.Result.Coordinates.Lat / tolerance))
		lngIdx := int64(math.Round(e.Result.Coordinates.Lng / tolerance))
		key := fmt.Sprintf("%d:%d", latIdx, lngIdx)

		clusters, index := &res.InRegion, inIdx
		if e.Result.OutsideRegion {
			clusters, index = &res.OutOfRegion, outIdx
		}

		i, ok := index[key]
		if !ok {
			i = len(*clusters)
			index[key] = i
			*clusters = append(*clusters, domain.LocationCluster{
				Key: key,
				Coordinates: domain.Coordinates{
					Lat: float64(latIdx) * tolerance,
					Lng: float64(lngIdx) * tolerance,
				},
			})
		}
		(*clusters)[i].Orders = append((*clusters)[i].Orders, o)
	}

	return res
}

// SortClusters orders clusters by key. Callers that need a stable
// presentation sort; Cluster itself makes no ordering promise.
func SortClusters(cs []domain.LocationCluster) {
	slices.SortFunc(cs, func(a, b domain.LocationCluster) int {
		return strings.Compare(a.Key, b.Key)
	})
}

// Viewport returns the smallest box containing every in-region cluster, and
// false when there is none.
func (r ClusterResult) Viewport() (domain.BoundingBox, bool) {
	if len(r.InRegion) == 0 {
		return domain.BoundingBox{}, false
	}

	box := domain.PointBox(r.InRegion[0].Coordinates)
	for _, c := range r.InRegion[1:] {
		box = box.Extend(c.Coordinates)
	}
	return box, true
}
