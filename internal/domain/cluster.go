package domain

// LocationCluster groups orders whose coordinates round to the same grid cell.
// Clusters are derived from a geocode snapshot and never stored.
type LocationCluster struct {
	Key         string         `json:"key"`
	Coordinates Coordinates    `json:"coordinates"`
	Orders      []ServiceOrder `json:"orders"`
}

// OrderIDs returns the IDs of the cluster members in cluster order.
func (c LocationCluster) OrderIDs() []string {
	ids := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}
