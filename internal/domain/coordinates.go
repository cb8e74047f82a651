package domain

// Immutable geographic coordinates (latitude, longitude) in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates lie within the WGS84 range.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// BoundingBox is a latitude/longitude rectangle. Membership is inclusive on
// every edge, so a point on the boundary is always inside.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// BrazilBounds is the default service region.
var BrazilBounds = BoundingBox{
	MinLat: -33.75,
	MinLng: -73.99,
	MaxLat: 5.27,
	MaxLng: -28.85,
}

func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// IsZero reports whether the box was never set.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// PointBox returns the degenerate box holding only c.
func PointBox(c Coordinates) BoundingBox {
	return BoundingBox{MinLat: c.Lat, MinLng: c.Lng, MaxLat: c.Lat, MaxLng: c.Lng}
}

// Extend returns the smallest box containing both b and c. Start from
// PointBox: a zero box is the point (0,0), not an empty box.
func (b BoundingBox) Extend(c Coordinates) BoundingBox {
	if c.Lat < b.MinLat {
		b.MinLat = c.Lat
	}
	if c.Lat > b.MaxLat {
		b.MaxLat = c.Lat
	}
	if c.Lng < b.MinLng {
		b.MinLng = c.Lng
	}
	if c.Lng > b.MaxLng {
		b.MaxLng = c.Lng
	}
	return b
}
