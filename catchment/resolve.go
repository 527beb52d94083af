package catchment

import (
	"fmt"

	"github.com/go-spatial/geom"
)

// Resolver reduces a clip result to the single polygon holding the site.
type Resolver struct {
	kernel Kernel
}

func NewResolver(kernel Kernel) *Resolver {
	return &Resolver{kernel: kernel}
}

// Resolve returns the final polygon and the parts that were set aside.
// Of a multipolygon the part holding the site in its interior wins. A site on the boundary of
// a part is not held by it.
func (r *Resolver) Resolve(site *Site, candidate geom.Geometry) (geom.Polygon, []geom.Polygon, error) {
	switch g := candidate.(type) {
	case geom.Polygon:
		return g, nil, nil
	case geom.MultiPolygon:
		winner := -1
		for i := range g {
			if r.kernel.ContainsInterior(g[i], site.Location) {
				winner = i
				break
			}
		}
		if winner < 0 {
			return nil, nil, &InvalidGeometryError{
				SiteID:   site.ID,
				Reason:   fmt.Sprintf("none of %d parts contains the site", len(g)),
				Geometry: g,
			}
		}
		rejected := make([]geom.Polygon, 0, len(g)-1)
		for i := range g {
			if i != winner {
				rejected = append(rejected, g[i])
			}
		}
		return g[winner], rejected, nil
	default:
		return nil, nil, &InvalidGeometryError{
			SiteID:   site.ID,
			Reason:   fmt.Sprintf("unexpected geometry type %T", candidate),
			Geometry: candidate,
		}
	}
}
