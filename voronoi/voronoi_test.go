package voronoi

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/catchment/catchment"
	"github.com/pdok/catchment/kernel"
)

func site(id string, x, y float64) *catchment.Site {
	return &catchment.Site{ID: id, Location: geom.Point{x, y}, Island: catchment.Unassigned}
}

func TestFrame(t *testing.T) {
	islands := []*catchment.Island{{Polygon: geom.Polygon{{{0, 0}, {10, 0}, {10, 5}, {0, 5}}}}}
	sites := []*catchment.Site{site("a", 12, 1)}

	frame, err := Frame(sites, islands, 0.5)
	require.NoError(t, err)
	assert.Equal(t, -6., frame.MinX())
	assert.Equal(t, -6., frame.MinY())
	assert.Equal(t, 18., frame.MaxX())
	assert.Equal(t, 11., frame.MaxY())

	_, err = Frame(nil, nil, 1)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestCells(t *testing.T) {
	k := kernel.NewPlanar()
	square := geom.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	frame := geom.NewExtent([2]float64{-10, -10}, [2]float64{20, 20})

	tests := []struct {
		name  string
		sites []*catchment.Site
		// area of each cell within the unit square, in site order
		want []float64
	}{
		{
			name:  "quadrants",
			sites: []*catchment.Site{site("sw", 2.5, 2.5), site("se", 7.5, 2.5), site("nw", 2.5, 7.5), site("ne", 7.5, 7.5)},
			want:  []float64{25, 25, 25, 25},
		},
		{
			name:  "two sites",
			sites: []*catchment.Site{site("w", 2, 5), site("e", 8, 5)},
			want:  []float64{50, 50},
		},
		{
			name:  "collinear",
			sites: []*catchment.Site{site("a", 1, 5), site("b", 3, 5), site("c", 9, 5)},
			want:  []float64{20, 40, 40},
		},
		{
			name:  "single site gets the frame",
			sites: []*catchment.Site{site("only", 5, 5)},
			want:  []float64{100},
		},
		{
			name:  "coincident sites share a cell",
			sites: []*catchment.Site{site("a", 2, 5), site("a2", 2, 5), site("b", 8, 5)},
			want:  []float64{50, 50, 50},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(k, 1, nil)
			cells, err := g.Cells(tt.sites, frame)
			require.NoError(t, err)
			require.Len(t, cells, len(tt.sites))
			for i, cell := range cells {
				assert.Equal(t, tt.sites[i].ID, cell.SiteID)
				assert.True(t, k.Contains(cell.Polygon, tt.sites[i].Location), "cell %s holds its site", cell.SiteID)
				within, err := k.Intersection(cell.Polygon, square)
				require.NoError(t, err)
				p, ok := within.(geom.Polygon)
				require.True(t, ok)
				assert.InDelta(t, tt.want[i], k.Area(p), 1e-6, "cell %s", cell.SiteID)
			}
		})
	}
}

func TestCellsEmpty(t *testing.T) {
	g := NewGenerator(kernel.NewPlanar(), 1, nil)
	cells, err := g.Cells(nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, cells)

	_, err = g.Cells([]*catchment.Site{site("a", 0, 0)}, nil)
	assert.ErrorIs(t, err, ErrNoFrame)
}
