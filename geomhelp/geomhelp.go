package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
	"github.com/paulmach/orb"
)

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[1]*p1[0] - p0[0]*p1[1]
		p0 = p1
	}
	return math.Abs(sum / 2)
}

// OpenRing drops the closing vertex of a ring if it repeats the first one.
// Rings in this module are stored open, like geom.Polygon.LinearRings() returns them.
func OpenRing(ring [][2]float64) [][2]float64 {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		return ring[:n-1]
	}
	return ring
}

// OpenPolygon returns a copy of p with every ring opened.
func OpenPolygon(p geom.Polygon) geom.Polygon {
	if p == nil {
		return nil
	}
	opened := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		r := OpenRing(ring)
		c := make([][2]float64, len(r))
		copy(c, r)
		opened = append(opened, c)
	}
	return opened
}

// ToOrbRing closes the ring, orb expects the first and last point to match.
func ToOrbRing(ring [][2]float64) orb.Ring {
	r := OpenRing(ring)
	o := make(orb.Ring, 0, len(r)+1)
	for _, pt := range r {
		o = append(o, orb.Point(pt))
	}
	if len(o) > 0 {
		o = append(o, o[0])
	}
	return o
}

func ToOrbPolygon(p geom.Polygon) orb.Polygon {
	o := make(orb.Polygon, 0, len(p))
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		o = append(o, ToOrbRing(ring))
	}
	return o
}

func FromOrbPolygon(p orb.Polygon) geom.Polygon {
	g := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		r := make([][2]float64, 0, len(ring))
		for _, pt := range ring {
			r = append(r, [2]float64(pt))
		}
		g = append(g, OpenRing(r))
	}
	return g
}

// Polygons flattens a Polygon or MultiPolygon into its polygons.
// ok is false for any other geometry type.
func Polygons(g geom.Geometry) (polygons []geom.Polygon, ok bool) {
	switch gg := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{gg}, true
	case geom.MultiPolygon:
		polygons = make([]geom.Polygon, 0, len(gg))
		for _, p := range gg {
			polygons = append(polygons, p)
		}
		return polygons, true
	default:
		return nil, false
	}
}

func WktMustEncode(g geom.Geometry, maxLen uint) (s string) {
	p, isPoly := g.(geom.Polygon)
	if !isPoly {
		return wktMustEncodeTruncated(g, maxLen)
	}

	var lines []geom.LineString
	var points []geom.Point
	pp := make(geom.Polygon, len(p))
	copy(pp, p)
	for r := 0; r < len(pp); r++ {
		switch len(pp[r]) {
		default:
			continue
		case 1:
			points = append(points, pp[r][0])
		case 2:
			lines = append(lines, pp[r])
		}
		pp = append(pp[:r], pp[r+1:]...)
		r--
	}

	if len(pp) > 0 {
		s = wktMustEncodeTruncated(pp, maxLen)
	}
	for i := range lines {
		s += wktMustEncodeTruncated(lines[i], maxLen)
	}
	for i := range points {
		s += wktMustEncodeTruncated(points[i], maxLen)
	}
	return s
}

func WktMustEncodeSlice(geoms []geom.Polygon, maxLen uint) string {
	s := ""
	for i := range geoms {
		s += WktMustEncode(geoms[i], maxLen) + "\n"
	}
	return s
}

func wktMustEncodeTruncated(geom geom.Geometry, width uint) string {
	if width == 0 {
		return wkt.MustEncode(geom)
	}
	return truncate.StringWithTail(wkt.MustEncode(geom), width, "...")
}
