package catchment

import (
	"fmt"

	"github.com/go-spatial/geom"
)

// Clipper cuts a site's voronoi cell down to the site's island.
type Clipper struct {
	kernel   Kernel
	buffered bool
}

func NewClipper(kernel Kernel, clipToBuffered bool) *Clipper {
	return &Clipper{kernel: kernel, buffered: clipToBuffered}
}

// Clip returns the candidate geometry for the site, a geom.Polygon or geom.MultiPolygon.
// A site that is alone on its island gets the whole island without intersecting, shortcut is then true.
func (c *Clipper) Clip(site *Site, island *Island, cell geom.Polygon) (candidate geom.Geometry, shortcut bool, err error) {
	clip := island.ClipPolygon(c.buffered)
	if island.SiteCount == 1 {
		return clip, true, nil
	}
	candidate, err = c.kernel.Intersection(cell, clip)
	if err != nil {
		return nil, false, &InvalidGeometryError{SiteID: site.ID, Reason: err.Error()}
	}
	if candidate == nil {
		return nil, false, fmt.Errorf("cell of site %s does not overlap island %d: %w", site.ID, island.Index, ErrIntersectionEmpty)
	}
	return candidate, false, nil
}
