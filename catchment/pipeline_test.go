package catchment

import (
	"errors"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/catchment/kernel"
)

// lineKernel answers every intersection with a line, something the resolver cannot use.
type lineKernel struct {
	*kernel.Planar
}

func (lineKernel) Intersection(_, _ geom.Polygon) (geom.Geometry, error) {
	return geom.LineString{{0, 0}, {1, 1}}, nil
}

func quadrantInput() ([]*Island, []*Site, []VoronoiCell) {
	return quadrantInputAt(2.5)
}

// quadrantInputAt puts one site per quadrant of a 10x10 island, inset from the corners,
// with the cells splitting the island at x=5 and y=5.
func quadrantInputAt(inset float64) ([]*Island, []*Site, []VoronoiCell) {
	islands := []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}}
	sites := []*Site{
		newSite("sw", inset, inset),
		newSite("se", 10-inset, inset),
		newSite("nw", inset, 10-inset),
		newSite("ne", 10-inset, 10-inset),
	}
	cells := []VoronoiCell{
		{SiteID: "sw", Polygon: rect(-100, -100, 5, 5)},
		{SiteID: "se", Polygon: rect(5, -100, 100, 5)},
		{SiteID: "nw", Polygon: rect(-100, 5, 5, 100)},
		{SiteID: "ne", Polygon: rect(5, 5, 100, 100)},
	}
	return islands, sites, cells
}

func TestPipelineQuadrants(t *testing.T) {
	tests := []struct {
		name     string
		inset    float64
		buffered bool
		delta    float64
	}{
		{name: "original island", inset: 2.5, buffered: false, delta: 1e-6},
		{name: "buffered island", inset: 2.5, buffered: true, delta: 0.1},
		{name: "sites at 2 and 8, original island", inset: 2, buffered: false, delta: 1e-6},
		{name: "sites at 2 and 8, buffered island", inset: 2, buffered: true, delta: 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			islands, sites, cells := quadrantInputAt(tt.inset)
			p := NewPipeline(kernel.NewPlanar(), Options{
				InitialBuffer:  0.0056,
				GrowthFactor:   1.001,
				MaxRounds:      10,
				ClipToBuffered: tt.buffered,
				Workers:        2,
			}, nil)
			result, err := p.Run(islands, sites, cells)
			require.NoError(t, err)
			require.NoError(t, result.Summary.Err())

			require.Len(t, result.Areas, 4)
			assert.Empty(t, result.Fragments)
			for i, area := range result.Areas {
				assert.Equal(t, sites[i].ID, area.SiteID)
				assert.Equal(t, 0, area.Island)
				assert.False(t, area.Shortcut)
				assert.InDelta(t, 25, area.Size, tt.delta)
				assert.True(t, p.kernel.Contains(area.Polygon, sites[i].Location))
			}
			require.Len(t, result.Summary.Rounds, 1)
			assert.Equal(t, []IslandSummary{{Index: 0, Contained: 4, Owned: 4, Buffer: 0.0056}}, result.Summary.Islands)
		})
	}
}

func TestPipelineSingleSiteShortcut(t *testing.T) {
	k := kernel.NewPlanar()
	islands := []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}}
	sites := []*Site{newSite("coast", 10.5, 5)}

	result, err := NewPipeline(k, Options{InitialBuffer: 0.2, GrowthFactor: 2, MaxRounds: 10, ClipToBuffered: true}, nil).
		Run(islands, sites, nil)
	require.NoError(t, err)
	require.Len(t, result.Areas, 1)

	area := result.Areas[0]
	assert.True(t, area.Shortcut)
	assert.Equal(t, islands[0].Buffered, area.Polygon)
	assert.Equal(t, k.Area(islands[0].Buffered), area.Size)
	assert.Greater(t, area.Size, 100.)
	require.Len(t, result.Summary.Rounds, 2)
	assert.InDelta(t, 0.6, result.Summary.Rounds[1].Buffer, 1e-12)

	result, err = NewPipeline(k, Options{InitialBuffer: 1, GrowthFactor: 2, MaxRounds: 10, ClipToBuffered: false}, nil).
		Run(islands, sites, nil)
	require.NoError(t, err)
	assert.Equal(t, 100., result.Areas[0].Size)
}

func TestPipelineMultipartResolution(t *testing.T) {
	uShape := geom.Polygon{{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}}}
	islands := []*Island{{Index: 0, Polygon: uShape}}
	sites := []*Site{newSite("a", 1.5, 8), newSite("b", 5, 1.5)}
	cells := []VoronoiCell{
		{SiteID: "a", Polygon: rect(-100, 6, 100, 100)},
		{SiteID: "b", Polygon: rect(-100, -100, 100, 6)},
	}

	k := kernel.NewPlanar()
	result, err := NewPipeline(k, Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 10}, nil).
		Run(islands, sites, cells)
	require.NoError(t, err)
	require.NoError(t, result.Summary.Err())

	require.Len(t, result.Areas, 2)
	assert.Equal(t, "a", result.Areas[0].SiteID)
	assert.InDelta(t, 12, result.Areas[0].Size, 1e-6)
	assert.True(t, k.Contains(result.Areas[0].Polygon, sites[0].Location))
	assert.Equal(t, "b", result.Areas[1].SiteID)
	assert.InDelta(t, 48, result.Areas[1].Size, 1e-6)

	require.Len(t, result.Fragments, 1)
	fragment := result.Fragments[0]
	assert.Equal(t, "a", fragment.SiteID)
	assert.Equal(t, 0, fragment.Island)
	assert.InDelta(t, 12, fragment.Size, 1e-6)
	assert.True(t, k.Contains(fragment.Polygon, geom.Point{8.5, 8}))
	assert.Equal(t, 1, result.Summary.Fragments)
}

func TestPipelineAnomalies(t *testing.T) {
	t.Run("cell misses the island", func(t *testing.T) {
		islands, sites, cells := quadrantInput()
		cells[1].Polygon = rect(50, 50, 60, 60)

		result, err := NewPipeline(kernel.NewPlanar(), Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 10}, nil).
			Run(islands, sites, cells)
		require.NoError(t, err)
		assert.Len(t, result.Areas, 3)
		require.Len(t, result.Summary.Anomalies, 1)
		assert.Equal(t, GeometryIntersectionEmpty, result.Summary.Anomalies[0].Kind)
		assert.Equal(t, "se", result.Summary.Anomalies[0].SiteID)
		assert.ErrorIs(t, result.Summary.Err(), ErrIntersectionEmpty)
	})

	t.Run("unusable clip result", func(t *testing.T) {
		islands, sites, cells := quadrantInput()
		result, err := NewPipeline(lineKernel{kernel.NewPlanar()}, Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 10, Workers: 3}, nil).
			Run(islands, sites, cells)
		require.NoError(t, err)
		assert.Empty(t, result.Areas)
		require.Len(t, result.Summary.Anomalies, 4)
		for i, anomaly := range result.Summary.Anomalies {
			assert.Equal(t, InvalidGeometry, anomaly.Kind)
			assert.Equal(t, sites[i].ID, anomaly.SiteID)
			var invalid *InvalidGeometryError
			assert.True(t, errors.As(anomaly.Err, &invalid))
		}
		assert.ErrorIs(t, result.Summary.Err(), ErrInvalidGeometry)
	})

	t.Run("missing cell", func(t *testing.T) {
		islands, sites, cells := quadrantInput()
		result, err := NewPipeline(kernel.NewPlanar(), Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 10}, nil).
			Run(islands, sites, cells[:3])
		require.NoError(t, err)
		assert.Len(t, result.Areas, 3)
		require.Len(t, result.Summary.Anomalies, 1)
		assert.Equal(t, "ne", result.Summary.Anomalies[0].SiteID)
		assert.Equal(t, InvalidGeometry, result.Summary.Anomalies[0].Kind)
	})
}

func TestPipelineFatalErrors(t *testing.T) {
	islands, sites, cells := quadrantInput()
	sites = append(sites, newSite("sw", 1, 1))
	_, err := NewPipeline(kernel.NewPlanar(), Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 10}, nil).
		Run(islands, sites, cells)
	assert.ErrorIs(t, err, ErrDuplicateSite)

	islands, sites, cells = quadrantInput()
	sites = append(sites, newSite("offshore", 40, 40))
	_, err = NewPipeline(kernel.NewPlanar(), Options{InitialBuffer: 0.01, GrowthFactor: 1.1, MaxRounds: 5}, nil).
		Run(islands, sites, cells)
	var failure *BoundaryCoverageFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, []string{"offshore"}, failure.Uncovered)
}

func TestPipelineIsIdempotent(t *testing.T) {
	uShape := geom.Polygon{{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}}}
	islands := []*Island{{Index: 0, Polygon: uShape}, {Index: 1, Polygon: rect(20, 0, 25, 5)}}
	sites := []*Site{newSite("a", 1.5, 8), newSite("b", 5, 1.5), newSite("c", 22, 2)}
	cells := []VoronoiCell{
		{SiteID: "a", Polygon: rect(-100, 6, 15, 100)},
		{SiteID: "b", Polygon: rect(-100, -100, 15, 6)},
		{SiteID: "c", Polygon: rect(15, -100, 100, 100)},
	}
	p := NewPipeline(kernel.NewPlanar(), Options{InitialBuffer: 0.05, GrowthFactor: 1.5, MaxRounds: 10, ClipToBuffered: true}, nil)

	first, err := p.Run(islands, sites, cells)
	require.NoError(t, err)
	second, err := p.Run(islands, sites, cells)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, second.Areas[2].Shortcut)
}

func TestResultLargest(t *testing.T) {
	r := &Result{Areas: []Area{
		{SiteID: "small", Size: 1},
		{SiteID: "big", Size: 9},
		{SiteID: "mid", Size: 4},
		{SiteID: "mid2", Size: 4},
	}}
	ids := func(areas []Area) []string {
		var out []string
		for _, a := range areas {
			out = append(out, a.SiteID)
		}
		return out
	}
	assert.Equal(t, []string{"big", "mid", "mid2"}, ids(r.Largest(3)))
	assert.Equal(t, []string{"big", "mid", "mid2", "small"}, ids(r.Largest(10)))
	assert.Nil(t, r.Largest(0))
}
