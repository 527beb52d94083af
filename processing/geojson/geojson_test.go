package geojson

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/pdok/catchment/processing"
)

const boundaries = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Mainland"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "Archipelago"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[20,0],[22,0],[22,2],[20,2],[20,0]]],
       [[[30,0],[32,0],[32,2],[30,2],[30,0]],[[30.5,0.5],[30.5,1],[31,1],[31,0.5],[30.5,0.5]]]
     ]}}
  ]
}`

const sites = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"id": 4, "name": "Bushy Park", "region": "London"},
     "geometry": {"type": "Point", "coordinates": [-0.33, 51.41]}},
    {"type": "Feature", "properties": {"id": "x", "name": "Nowhere"},
     "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSourceIslands(t *testing.T) {
	islands, err := processing.ReadIslands(NewSource(writeFile(t, "land.geojson", boundaries)), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, islands, 3)
	assert.Equal(t, geom.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}, islands[0].Polygon)
	assert.Equal(t, 2, islands[2].Index)
	assert.Len(t, islands[2].Polygon, 2)
}

func TestSourceSites(t *testing.T) {
	got, err := processing.ReadSites(NewSource(writeFile(t, "sites.geojson", sites)), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "Bushy Park", got[0].Name)
	assert.Equal(t, "London", got[0].Region)
	assert.Equal(t, geom.Point{-0.33, 51.41}, got[0].Location)
}

func TestSourceErrors(t *testing.T) {
	_, err := processing.ReadIslands(NewSource(filepath.Join(t.TempDir(), "missing.geojson")), zap.NewNop())
	assert.Error(t, err)
	_, err = processing.ReadIslands(NewSource(writeFile(t, "broken.geojson", `{"type":`)), zap.NewNop())
	assert.Error(t, err)
}

func TestTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.geojson")
	props := orderedmap.New[string, interface{}]()
	props.Set("site_id", "a")
	props.Set("area", 100.)

	features := make(chan processing.Feature, 1)
	features <- processing.NewFeature(processing.AreasLayer.Name, props, geom.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}})
	close(features)
	require.NoError(t, NewTarget(path).WriteFeatures(features))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "properties": {"site_id": "a", "area": 100},
	     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}
	  ]
	}`, string(written))
}
