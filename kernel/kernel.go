// Package kernel holds the planar geometry operations the catchment pipeline runs on:
// buffering, intersection, point containment and area.
package kernel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/pdok/catchment/geomhelp"
	"github.com/pdok/catchment/mathhelp"
)

const defaultSegments = 32

const (
	wktMaxLen   = 80
	sliverRatio = 1e-6

	boundaryTolerance = 1e-24
)

var (
	ErrEmptyBuffer   = errors.New("buffer produced no polygon")
	ErrInvalidBuffer = errors.New("buffer does not cover the polygon")
)

// discRotations are tried in turn, as fractions of a disc segment. None of them puts a disc vertex
// or a disc edge on an axis or a diagonal, where edges of the input tend to run.
var discRotations = []float64{0.25, 0.375, 0.125, 0.3}

// Planar implements the catchment geometry kernel on a flat plane.
// Coordinates are treated as cartesian, whatever their reference system.
type Planar struct {
	// Segments is the number of sides used to approximate a disc around each vertex when buffering.
	Segments int
}

func NewPlanar() *Planar {
	return &Planar{Segments: defaultSegments}
}

// Buffer returns the polygon grown outwards by distance.
// The vertex discs are circumscribed polygons, so every point within distance of p is covered.
// A union that does not cover p, or that falls apart in several parts, is retried with the discs
// rotated and otherwise reported as ErrInvalidBuffer.
func (k *Planar) Buffer(p geom.Polygon, distance float64) (geom.Polygon, error) {
	p = geomhelp.OpenPolygon(p)
	if len(p) == 0 || len(p[0]) < 3 {
		return nil, fmt.Errorf("cannot buffer polygon with %d rings: %w", len(p), ErrEmptyBuffer)
	}
	if distance <= 0 {
		return p, nil
	}

	var parts []geom.Polygon
	for _, rotation := range discRotations {
		var band []polyclip.Polygon
		for _, ring := range p {
			band = append(band, k.ringPieces(ring, distance, rotation)...)
		}
		// band first, the polygon then only fills in its inside
		union := tidy(unionAll(band)).Construct(polyclip.UNION, toPolyclip(p))
		parts = group(tidy(union))
		if buffered, ok := k.covers(parts, p); ok {
			return buffered, nil
		}
	}
	if len(parts) == 0 {
		return nil, ErrEmptyBuffer
	}
	return nil, fmt.Errorf("%w: %d part(s) %s", ErrInvalidBuffer, len(parts), geomhelp.WktMustEncodeSlice(parts, wktMaxLen))
}

// covers accepts a union result when it is one part (slivers aside) that holds every vertex and
// edge midpoint of p and is at least as large.
func (k *Planar) covers(parts []geom.Polygon, p geom.Polygon) (geom.Polygon, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	largest, largestArea := parts[0], k.Area(parts[0])
	total := largestArea
	for _, candidate := range parts[1:] {
		a := k.Area(candidate)
		total += a
		if a > largestArea {
			largest, largestArea = candidate, a
		}
	}
	if total-largestArea > sliverRatio*largestArea {
		return nil, false
	}
	if largestArea < k.Area(p)*(1-1e-9) {
		return nil, false
	}
	outer := p[0]
	for i, a := range outer {
		b := outer[mathhelp.EuclidianMod(i+1, len(outer))]
		mid := geom.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		if !k.Contains(largest, a) || !k.Contains(largest, mid) {
			return nil, false
		}
	}
	return largest, true
}

// Intersection returns nil, a geom.Polygon or a geom.MultiPolygon.
func (k *Planar) Intersection(a, b geom.Polygon) (geom.Geometry, error) {
	a, b = geomhelp.OpenPolygon(a), geomhelp.OpenPolygon(b)
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	result := toPolyclip(a).Construct(polyclip.INTERSECTION, toPolyclip(b))
	polygons := group(result)
	switch len(polygons) {
	case 0:
		return nil, nil
	case 1:
		return polygons[0], nil
	default:
		mp := make(geom.MultiPolygon, 0, len(polygons))
		for _, polygon := range polygons {
			mp = append(mp, polygon)
		}
		return mp, nil
	}
}

// Contains reports whether pt lies inside p or on its boundary.
func (k *Planar) Contains(p geom.Polygon, pt geom.Point) bool {
	if len(p) == 0 {
		return false
	}
	return planar.PolygonContains(geomhelp.ToOrbPolygon(p), orb.Point(pt))
}

// ContainsInterior reports whether pt lies inside p and not on the boundary of any of its rings.
func (k *Planar) ContainsInterior(p geom.Polygon, pt geom.Point) bool {
	if !k.Contains(p, pt) {
		return false
	}
	op := orb.Point(pt)
	for _, ring := range p {
		r := geomhelp.ToOrbRing(ring)
		for i := 1; i < len(r); i++ {
			if planar.DistanceFromSegmentSquared(r[i-1], r[i], op) <= boundaryTolerance {
				return false
			}
		}
	}
	return true
}

// Area returns the planar area of p, holes subtracted.
func (k *Planar) Area(p geom.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return math.Abs(planar.Area(geomhelp.ToOrbPolygon(p)))
}

// ringPieces covers the band of width distance around a ring with a rectangle per edge and a disc per vertex.
// Rectangles reach a little past their vertices so their end caps never run along a neighbouring edge.
func (k *Planar) ringPieces(ring [][2]float64, distance, rotation float64) []polyclip.Polygon {
	segments := k.Segments
	if segments < 8 {
		segments = defaultSegments
	}
	radius := distance / math.Cos(math.Pi/float64(segments))
	overreach := distance * 1e-3

	pieces := make([]polyclip.Polygon, 0, 2*len(ring))
	for i, a := range ring {
		b := ring[mathhelp.EuclidianMod(i+1, len(ring))]
		dx, dy := b[0]-a[0], b[1]-a[1]
		length := math.Hypot(dx, dy)
		if length > 0 {
			ux, uy := dx/length*overreach, dy/length*overreach
			nx, ny := -dy/length*distance, dx/length*distance
			pieces = append(pieces, polyclip.Polygon{polyclip.Contour{
				{X: a[0] - ux + nx, Y: a[1] - uy + ny},
				{X: b[0] + ux + nx, Y: b[1] + uy + ny},
				{X: b[0] + ux - nx, Y: b[1] + uy - ny},
				{X: a[0] - ux - nx, Y: a[1] - uy - ny},
			}})
		}
		disc := make(polyclip.Contour, segments)
		for s := 0; s < segments; s++ {
			angle := 2 * math.Pi * (float64(s) + rotation) / float64(segments)
			disc[s] = polyclip.Point{X: a[0] + radius*math.Cos(angle), Y: a[1] + radius*math.Sin(angle)}
		}
		pieces = append(pieces, polyclip.Polygon{disc})
	}
	return pieces
}

// unionAll merges pairwise so the intermediate polygons stay small.
func unionAll(pieces []polyclip.Polygon) polyclip.Polygon {
	if len(pieces) == 0 {
		return nil
	}
	for len(pieces) > 1 {
		merged := make([]polyclip.Polygon, 0, (len(pieces)+1)/2)
		for i := 0; i < len(pieces); i += 2 {
			if i+1 == len(pieces) {
				merged = append(merged, pieces[i])
				continue
			}
			merged = append(merged, tidy(pieces[i].Construct(polyclip.UNION, pieces[i+1])))
		}
		pieces = merged
	}
	return pieces[0]
}

// tidy drops repeated and collinear vertices a Construct leaves behind, the next Construct trips over them.
func tidy(p polyclip.Polygon) polyclip.Polygon {
	minX, minY, maxX, maxY := math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	for _, c := range p {
		for _, pt := range c {
			minX, minY = math.Min(minX, pt.X), math.Min(minY, pt.Y)
			maxX, maxY = math.Max(maxX, pt.X), math.Max(maxY, pt.Y)
		}
	}
	eps := 1e-12 * math.Max(maxX-minX, maxY-minY)

	tidied := make(polyclip.Polygon, 0, len(p))
	for _, c := range p {
		c = tidyContour(c, eps)
		if len(c) >= 3 {
			tidied = append(tidied, c)
		}
	}
	return tidied
}

func tidyContour(c polyclip.Contour, eps float64) polyclip.Contour {
	out := make(polyclip.Contour, len(c))
	copy(out, c)
	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			a := out[mathhelp.EuclidianMod(i-1, len(out))]
			b := out[i]
			next := out[mathhelp.EuclidianMod(i+1, len(out))]
			abx, aby := b.X-a.X, b.Y-a.Y
			bcx, bcy := next.X-b.X, next.Y-b.Y
			ab, bc := math.Hypot(abx, aby), math.Hypot(bcx, bcy)
			if ab <= eps || math.Abs(abx*bcy-aby*bcx) <= eps*math.Max(ab, bc) {
				out = append(out[:i], out[i+1:]...)
				i--
				changed = true
			}
		}
	}
	return out
}

func toPolyclip(p geom.Polygon) polyclip.Polygon {
	o := make(polyclip.Polygon, 0, len(p))
	for _, ring := range p {
		r := geomhelp.OpenRing(ring)
		if len(r) < 3 {
			continue
		}
		c := make(polyclip.Contour, len(r))
		for i, pt := range r {
			c[i] = polyclip.Point{X: pt[0], Y: pt[1]}
		}
		o = append(o, c)
	}
	return o
}

type contour struct {
	ring  [][2]float64
	orb   orb.Ring
	area  float64
	depth int
}

// group turns the flat contour list polyclip returns into polygons with their holes.
// A contour is nested in another when all its vertices lie inside or on the other one
// and it is smaller. Contours at even depth are outer rings, odd depth are holes of the
// smallest enclosing outer ring.
func group(p polyclip.Polygon) []geom.Polygon {
	contours := make([]*contour, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		ring := make([][2]float64, len(c))
		for i, pt := range c {
			ring[i] = [2]float64{pt.X, pt.Y}
		}
		o := geomhelp.ToOrbRing(ring)
		area := math.Abs(planar.Area(o))
		if area == 0 {
			continue
		}
		contours = append(contours, &contour{ring: ring, orb: o, area: area})
	}
	// biggest first, so parents precede their children
	sort.SliceStable(contours, func(i, j int) bool { return contours[i].area > contours[j].area })

	parents := make([]int, len(contours))
	for i, c := range contours {
		parents[i] = -1
		for j := 0; j < i; j++ {
			if contours[j].area > c.area && nestedIn(c, contours[j]) {
				c.depth++
				if parents[i] < 0 || contours[j].area < contours[parents[i]].area {
					parents[i] = j
				}
			}
		}
	}

	var polygons []geom.Polygon
	outerAt := make(map[int]int, len(contours))
	for i, c := range contours {
		if c.depth%2 == 0 {
			outerAt[i] = len(polygons)
			polygons = append(polygons, geom.Polygon{c.ring})
		}
	}
	for i, c := range contours {
		if c.depth%2 == 1 {
			if idx, ok := outerAt[parents[i]]; ok {
				polygons[idx] = append(polygons[idx], c.ring)
			}
		}
	}
	return polygons
}

func nestedIn(inner, outer *contour) bool {
	bound := outer.orb.Bound()
	for _, pt := range inner.ring {
		p := orb.Point(pt)
		if !bound.Contains(p) || !planar.RingContains(outer.orb, p) {
			return false
		}
	}
	return true
}
