// Package voronoi builds bounded voronoi cells for sites.
package voronoi

import (
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/go-spatial/geom"
	"go.uber.org/zap"

	"github.com/pdok/catchment/catchment"
	"github.com/pdok/catchment/kernel"
)

var ErrNoFrame = errors.New("voronoi frame is empty")

type Generator struct {
	kernel *kernel.Planar
	margin float64
	logger *zap.Logger
}

func NewGenerator(k *kernel.Planar, margin float64, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{kernel: k, margin: margin, logger: logger}
}

// Frame is the extent of sites and islands, grown on all sides by margin times its largest span.
func Frame(sites []*catchment.Site, islands []*catchment.Island, margin float64) (*geom.Extent, error) {
	var ext *geom.Extent
	add := func(g geom.Geometry) error {
		if ext == nil {
			e, err := geom.NewExtentFromGeometry(g)
			if err != nil {
				return err
			}
			ext = e
			return nil
		}
		return ext.AddGeometry(g)
	}
	for _, s := range sites {
		if err := add(s.Location); err != nil {
			return nil, err
		}
	}
	for _, i := range islands {
		if err := add(i.Polygon); err != nil {
			return nil, err
		}
	}
	if ext == nil {
		return nil, ErrNoFrame
	}
	span := math.Max(ext.XSpan(), ext.YSpan())
	if span == 0 {
		span = 1
	}
	grow := span * margin
	return geom.NewExtent([2]float64{ext.MinX() - grow, ext.MinY() - grow}, [2]float64{ext.MaxX() + grow, ext.MaxY() + grow}), nil
}

// Cells returns one cell per site, in site order. Sites sharing a location share a cell.
func (g *Generator) Cells(sites []*catchment.Site, frame *geom.Extent) ([]catchment.VoronoiCell, error) {
	if len(sites) == 0 {
		return nil, nil
	}
	if frame == nil {
		return nil, ErrNoFrame
	}

	// unique locations, so coincident sites don't trip the triangulation
	var points []delaunay.Point
	pointOf := make([]int, len(sites))
	seen := make(map[geom.Point]int, len(sites))
	for i, s := range sites {
		idx, ok := seen[s.Location]
		if !ok {
			idx = len(points)
			seen[s.Location] = idx
			points = append(points, delaunay.Point{X: s.Location[0], Y: s.Location[1]})
		}
		pointOf[i] = idx
	}

	neighbours := g.neighbours(points)
	framePolygon := geom.Polygon{{
		{frame.MinX(), frame.MinY()},
		{frame.MaxX(), frame.MinY()},
		{frame.MaxX(), frame.MaxY()},
		{frame.MinX(), frame.MaxY()},
	}}
	reach := 4 * math.Hypot(frame.XSpan(), frame.YSpan())

	polygons := make([]geom.Polygon, len(points))
	for i := range points {
		cell := framePolygon
		for _, j := range neighbours[i] {
			clipped, err := g.kernel.Intersection(cell, halfPlane(points[i], points[j], reach))
			if err != nil {
				return nil, fmt.Errorf("could not cut cell %d with neighbour %d: %w", i, j, err)
			}
			p, ok := clipped.(geom.Polygon)
			if !ok {
				return nil, fmt.Errorf("cell %d with neighbour %d: unexpected %T", i, j, clipped)
			}
			cell = p
		}
		polygons[i] = cell
	}

	cells := make([]catchment.VoronoiCell, len(sites))
	for i, s := range sites {
		cells[i] = catchment.VoronoiCell{SiteID: s.ID, Polygon: polygons[pointOf[i]]}
	}
	g.logger.Debug("voronoi cells built", zap.Int("sites", len(sites)), zap.Int("locations", len(points)))
	return cells, nil
}

// neighbours lists the delaunay neighbours of every point. When no triangulation exists,
// every point is a neighbour of every other.
func (g *Generator) neighbours(points []delaunay.Point) [][]int {
	n := len(points)
	sets := make([]map[int]struct{}, n)
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	link := func(a, b int) {
		if a != b {
			sets[a][b] = struct{}{}
			sets[b][a] = struct{}{}
		}
	}

	triangulation, err := delaunay.Triangulate(points)
	if err != nil || len(triangulation.Triangles) == 0 {
		g.logger.Debug("no delaunay triangulation, using all pairs", zap.Int("points", n), zap.Error(err))
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				link(a, b)
			}
		}
	} else {
		t := triangulation.Triangles
		for k := 0; k+2 < len(t); k += 3 {
			link(t[k], t[k+1])
			link(t[k+1], t[k+2])
			link(t[k+2], t[k])
		}
	}

	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if _, ok := sets[i][j]; ok {
				neighbours[i] = append(neighbours[i], j)
			}
		}
	}
	return neighbours
}

// halfPlane is a large square covering the side of the bisector of a and b that holds a.
func halfPlane(a, b delaunay.Point, reach float64) geom.Polygon {
	mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	nx, ny := dx/length, dy/length
	// u runs along the bisector, n points towards b
	ux, uy := -ny, nx
	return geom.Polygon{{
		{mx + ux*reach, my + uy*reach},
		{mx + ux*reach - nx*reach, my + uy*reach - ny*reach},
		{mx - ux*reach - nx*reach, my - uy*reach - ny*reach},
		{mx - ux*reach, my - uy*reach},
	}}
}
