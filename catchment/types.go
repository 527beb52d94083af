package catchment

import (
	"github.com/go-spatial/geom"
)

// Unassigned marks a site that no island has claimed (yet).
const Unassigned = -1

// Kernel is the set of planar geometry operations the pipeline needs.
// Intersection returns nil when the inputs do not overlap, otherwise a geom.Polygon or geom.MultiPolygon.
// Contains counts the boundary as inside, ContainsInterior does not.
type Kernel interface {
	Buffer(p geom.Polygon, distance float64) (geom.Polygon, error)
	Intersection(a, b geom.Polygon) (geom.Geometry, error)
	Contains(p geom.Polygon, pt geom.Point) bool
	ContainsInterior(p geom.Polygon, pt geom.Point) bool
	Area(p geom.Polygon) float64
}

type Site struct {
	ID       string
	Name     string
	Region   string
	Location geom.Point
	Island   int
}

// Island is one landmass. Buffered and SiteCount are rewritten every assignment round,
// Buffer is the cumulative distance Buffered was grown by.
type Island struct {
	Index     int
	Polygon   geom.Polygon
	Buffered  geom.Polygon
	SiteCount int
	Buffer    float64
}

// ClipPolygon is the polygon catchment areas on this island are clipped against.
func (i *Island) ClipPolygon(buffered bool) geom.Polygon {
	if buffered && i.Buffered != nil {
		return i.Buffered
	}
	return i.Polygon
}

// VoronoiCell is the region of the plane closer to its site than to any other site.
type VoronoiCell struct {
	SiteID  string
	Polygon geom.Polygon
}

// Area is the final catchment area of a site.
type Area struct {
	SiteID  string
	Island  int
	Polygon geom.Polygon
	// Size is the planar area in squared coordinate units.
	Size     float64
	Shortcut bool
}

// UnresolvedFragment is a part of a site's clipped cell that does not hold the site.
type UnresolvedFragment struct {
	SiteID  string
	Island  int
	Polygon geom.Polygon
	Size    float64
}

// Round records one pass of the island assignment.
type Round struct {
	Step    float64 `json:"step"`
	Buffer  float64 `json:"buffer"`
	Covered int     `json:"covered"`
}
