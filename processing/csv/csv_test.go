package csv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdok/catchment/processing"
)

func readAll(t *testing.T, content string) ([]processing.Feature, error) {
	t.Helper()
	features := make(chan processing.Feature)
	done := make(chan error, 1)
	go func() {
		defer close(features)
		done <- read(strings.NewReader(content), ',', features)
	}()
	var got []processing.Feature
	for f := range features {
		got = append(got, f)
	}
	return got, <-done
}

func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		content string
		points  []geom.Point
		wantErr string
	}{
		{
			name:    "short headers",
			content: "id,m,lo,la,r\n1,Bushy Park,-0.33,51.41,London\n2,Ayr,-4.6,55.4,Scotland\n",
			points:  []geom.Point{{-0.33, 51.41}, {-4.6, 55.4}},
		},
		{
			name:    "long headers with bom",
			content: "\ufeffid,name,Longitude,Latitude\n9, Fell Foot ,-2.95, 54.27\n",
			points:  []geom.Point{{-2.95, 54.27}},
		},
		{name: "no coordinates", content: "id,name\n1,x\n", wantErr: "no coordinate columns"},
		{name: "bad number", content: "id,x,y\n1,east,2\n", wantErr: "line 2: bad x"},
		{name: "ragged", content: "id,x,y\n1,1\n", wantErr: "line 2"},
		{name: "empty", content: "", wantErr: "could not read header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readAll(t, tt.content)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.points))
			for i, f := range got {
				assert.Equal(t, tt.points[i], f.Geometry())
			}
		})
	}
}

func TestSourceSites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,m,lo,la,r\n1,Bushy Park,-0.33,51.41,London\n"), 0o600))

	sites, err := processing.ReadSites(NewSource(path), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "1", sites[0].ID)
	assert.Equal(t, "Bushy Park", sites[0].Name)
	assert.Equal(t, "London", sites[0].Region)
	assert.Equal(t, geom.Point{-0.33, 51.41}, sites[0].Location)

	_, err = processing.ReadSites(NewSource(filepath.Join(t.TempDir(), "none.csv")), zap.NewNop())
	assert.Error(t, err)
}
