// Package geojson reads and writes GeoJSON FeatureCollections with paulmach/orb.
package geojson

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/catchment/geomhelp"
	"github.com/pdok/catchment/processing"
)

type Source struct {
	path string
}

func NewSource(path string) *Source {
	return &Source{path: path}
}

func (s *Source) ReadFeatures(features chan<- processing.Feature) error {
	defer close(features)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", s.path, err)
	}
	for _, f := range fc.Features {
		// sorted, orb keeps properties in a plain map
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		props := orderedmap.New[string, interface{}](orderedmap.WithCapacity[string, interface{}](len(keys)))
		for _, k := range keys {
			props.Set(k, f.Properties[k])
		}
		features <- processing.NewFeature("", props, fromOrb(f.Geometry))
	}
	return nil
}

// Target collects features and writes them as one FeatureCollection once the channel closes.
type Target struct {
	path string
}

func NewTarget(path string) *Target {
	return &Target{path: path}
}

func (t *Target) WriteFeatures(features <-chan processing.Feature) error {
	fc := geojson.NewFeatureCollection()
	for f := range features {
		feature := geojson.NewFeature(toOrb(f.Geometry()))
		if props := f.Properties(); props != nil {
			for p := props.Oldest(); p != nil; p = p.Next() {
				feature.Properties[p.Key] = p.Value
			}
		}
		fc.Append(feature)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(t.path, data, 0o644)
}

func fromOrb(g orb.Geometry) geom.Geometry {
	switch og := g.(type) {
	case orb.Point:
		return geom.Point(og)
	case orb.Polygon:
		return geomhelp.FromOrbPolygon(og)
	case orb.MultiPolygon:
		mp := make(geom.MultiPolygon, 0, len(og))
		for _, p := range og {
			mp = append(mp, geomhelp.FromOrbPolygon(p))
		}
		return mp
	case orb.MultiPoint:
		mp := make(geom.MultiPoint, 0, len(og))
		for _, p := range og {
			mp = append(mp, [2]float64(p))
		}
		return mp
	case orb.LineString:
		ls := make(geom.LineString, 0, len(og))
		for _, p := range og {
			ls = append(ls, [2]float64(p))
		}
		return ls
	default:
		return nil
	}
}

func toOrb(g geom.Geometry) orb.Geometry {
	switch gg := g.(type) {
	case geom.Point:
		return orb.Point(gg)
	case geom.Polygon:
		return geomhelp.ToOrbPolygon(gg)
	case geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, len(gg))
		for _, p := range gg {
			mp = append(mp, geomhelp.ToOrbPolygon(p))
		}
		return mp
	default:
		return nil
	}
}
