package sim

import "math"

// Product is a tradable good. Topic places it in the directory's category tree.
type Product struct {
	ID    string
	Name  string
	Unit  string
	Topic string
}

func (p *Product) String() string {
	if p == nil {
		return "<nil product>"
	}
	return p.ID
}

// Location is a point on the simulation plane.
type Location struct {
	X float64
	Y float64
}

// DistanceTo returns the planar distance between two locations.
func (l Location) DistanceTo(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}
