package catchment

import (
	"errors"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/catchment/kernel"
	"github.com/pdok/catchment/mapslicehelp"
)

func rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}}
}

func newSite(id string, x, y float64) *Site {
	return &Site{ID: id, Location: geom.Point{x, y}, Island: Unassigned}
}

func TestAssignGrowsUntilCovered(t *testing.T) {
	islands := []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}}
	sites := []*Site{newSite("coast", 10.5, 5)}

	a := NewAssigner(kernel.NewPlanar(), 0.2, 2, 10, nil)
	got, err := a.Assign(islands, sites)
	require.NoError(t, err)

	require.Len(t, got.Rounds, 2)
	assert.Equal(t, Round{Step: 0.2, Buffer: 0.2, Covered: 0}, got.Rounds[0])
	assert.Equal(t, 0.4, got.Rounds[1].Step)
	assert.InDelta(t, 0.6, got.Rounds[1].Buffer, 1e-12)
	assert.Equal(t, 1, got.Rounds[1].Covered)

	assert.Equal(t, 0, sites[0].Island)
	assert.Equal(t, 1, islands[0].SiteCount)
	assert.InDelta(t, 0.6, islands[0].Buffer, 1e-12)
	assert.Equal(t, []string{"coast"}, mapslicehelp.OrderedMapKeys(got.Islands))
}

func TestAssignStepsStrictlyIncrease(t *testing.T) {
	islands := []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}}
	sites := []*Site{newSite("far", 11, 5)}

	got, err := NewAssigner(kernel.NewPlanar(), 0.01, 1.5, 100, nil).Assign(islands, sites)
	require.NoError(t, err)
	require.Greater(t, len(got.Rounds), 2)
	for i := 1; i < len(got.Rounds); i++ {
		assert.Greater(t, got.Rounds[i].Step, got.Rounds[i-1].Step)
		assert.Greater(t, got.Rounds[i].Buffer, got.Rounds[i-1].Buffer)
	}
	final := got.Rounds[len(got.Rounds)-1]
	assert.GreaterOrEqual(t, final.Buffer, 1.)
	assert.Less(t, got.Rounds[len(got.Rounds)-2].Buffer, 1.)
}

func TestAssignLastIslandWins(t *testing.T) {
	islands := []*Island{
		{Index: 0, Polygon: rect(0, 0, 10, 10)},
		{Index: 1, Polygon: rect(10.1, 0, 20, 10)},
	}
	sites := []*Site{newSite("strait", 10.05, 5), newSite("west", 5, 5)}

	got, err := NewAssigner(kernel.NewPlanar(), 0.1, 1.001, 10, nil).Assign(islands, sites)
	require.NoError(t, err)
	require.Len(t, got.Rounds, 1)
	assert.Equal(t, 3, got.Rounds[0].Covered)

	assert.Equal(t, 1, sites[0].Island)
	assert.Equal(t, 0, sites[1].Island)
	assert.Equal(t, 2, islands[0].SiteCount)
	assert.Equal(t, 1, islands[1].SiteCount)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, got.SitesPerIsland(islands))
}

func TestAssignFailures(t *testing.T) {
	tests := []struct {
		name      string
		islands   []*Island
		sites     []*Site
		maxRounds int
		rounds    int
		uncovered []string
	}{
		{
			name:      "round cap",
			islands:   []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}},
			sites:     []*Site{newSite("in", 5, 5), newSite("far", 50, 50)},
			maxRounds: 3,
			rounds:    3,
			uncovered: []string{"far"},
		},
		{
			name:      "no islands",
			sites:     []*Site{newSite("lost", 1, 1)},
			maxRounds: 10,
			rounds:    0,
			uncovered: []string{"lost"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssigner(kernel.NewPlanar(), 0.1, 1.1, tt.maxRounds, nil).Assign(tt.islands, tt.sites)
			require.ErrorIs(t, err, ErrBoundaryCoverage)
			var failure *BoundaryCoverageFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, tt.rounds, failure.Rounds)
			assert.Equal(t, tt.uncovered, failure.Uncovered)
		})
	}
}

func TestAssignNoSites(t *testing.T) {
	islands := []*Island{{Index: 0, Polygon: rect(0, 0, 10, 10)}}
	got, err := NewAssigner(kernel.NewPlanar(), 0.1, 1.1, 10, nil).Assign(islands, nil)
	require.NoError(t, err)
	assert.Len(t, got.Rounds, 1)
	assert.Equal(t, 0, got.Islands.Len())
	assert.NotNil(t, islands[0].Buffered)
}
