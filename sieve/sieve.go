// Package sieve fills small holes in islands before catchment areas are cut from them.
package sieve

import (
	"github.com/go-spatial/geom"

	"github.com/pdok/catchment/catchment"
	"github.com/pdok/catchment/geomhelp"
)

// calculate the area of a polygon
func area(geom [][][2]float64) float64 {
	interior := .0
	if geom == nil {
		return 0.
	}
	if len(geom) > 1 {
		for _, i := range geom[1:] {
			interior += geomhelp.Shoelace(i)
		}
	}
	return geomhelp.Shoelace(geom[0]) - interior
}

// fillHoles drops the interior rings of p smaller than resolution^2.
// The exterior is always kept, however small.
func fillHoles(p geom.Polygon, resolution float64) (geom.Polygon, int) {
	if len(p) < 2 {
		return p, 0
	}
	minArea := resolution * resolution
	sieved := geom.Polygon{p[0]}
	filled := 0
	for _, interior := range p[1:] {
		if geomhelp.Shoelace(interior) > minArea {
			sieved = append(sieved, interior)
			continue
		}
		filled++
	}
	return sieved, filled
}

// Islands fills the holes below resolution^2 in every island and returns how many were filled.
// A resolution of 0 or less leaves the islands alone.
func Islands(islands []*catchment.Island, resolution float64) int {
	if resolution <= 0 {
		return 0
	}
	total := 0
	for _, island := range islands {
		var filled int
		island.Polygon, filled = fillHoles(island.Polygon, resolution)
		total += filled
	}
	return total
}

// LandArea sums the area of all islands, holes subtracted.
func LandArea(islands []*catchment.Island) float64 {
	sum := 0.
	for _, island := range islands {
		sum += area(island.Polygon)
	}
	return sum
}
