package catchment

import (
	"github.com/go-spatial/geom"
)

// Measure returns the planar area of a finalized polygon.
func Measure(kernel Kernel, p geom.Polygon) float64 {
	a := kernel.Area(p)
	if a < 0 {
		return 0
	}
	return a
}
