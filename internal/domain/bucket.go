package domain

// BucketName identifies one of the status groupings of a technician's orders.
type BucketName string

const (
	BucketInProgress BucketName = "in_progress"
	BucketToday      BucketName = "today"
	BucketTomorrow   BucketName = "tomorrow"
	BucketFuture     BucketName = "future"
)

// AllBuckets lists bucket names in board order.
var AllBuckets = []BucketName{BucketInProgress, BucketToday, BucketTomorrow, BucketFuture}

// Buckets holds the bucketed orders of one technician.
// A technician with no orders is an explicit empty record.
type Buckets struct {
	Technician string         `json:"technician"`
	InProgress []ServiceOrder `json:"inProgress"`
	Today      []ServiceOrder `json:"today"`
	Tomorrow   []ServiceOrder `json:"tomorrow"`
	Future     []ServiceOrder `json:"future"`
}

// EmptyBuckets returns a known-empty record for the technician.
func EmptyBuckets(technician string) Buckets {
	return Buckets{
		Technician: technician,
		InProgress: []ServiceOrder{},
		Today:      []ServiceOrder{},
		Tomorrow:   []ServiceOrder{},
		Future:     []ServiceOrder{},
	}
}

func (b Buckets) Bucket(name BucketName) []ServiceOrder {
	switch name {
	case BucketInProgress:
		return b.InProgress
	case BucketToday:
		return b.Today
	case BucketTomorrow:
		return b.Tomorrow
	case BucketFuture:
		return b.Future
	}
	return nil
}

// Total counts orders across all buckets.
func (b Buckets) Total() int {
	return len(b.InProgress) + len(b.Today) + len(b.Tomorrow) + len(b.Future)
}

// Technician is an entry of the available-technicians listing.
type Technician struct {
	ID         string `json:"technicianId"`
	Name       string `json:"name"`
	OrderCount int    `json:"orderCount"`
}
