// Package processing takes care of the logistics around reading sources and writing to targets.
// Not the catchment computation itself.
package processing

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-spatial/geom"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pdok/catchment/catchment"
	"github.com/pdok/catchment/geomhelp"
)

var (
	AreasLayer = Layer{
		Name:         "catchment_areas",
		Description:  "Catchment area per site",
		GeometryType: "POLYGON",
		Columns: []Column{
			{Name: "site_id", Type: Text},
			{Name: "name", Type: Text},
			{Name: "region", Type: Text},
			{Name: "island", Type: Integer},
			{Name: "area", Type: Real},
			{Name: "shortcut", Type: Boolean},
		},
	}
	FragmentsLayer = Layer{
		Name:         "unresolved_fragments",
		Description:  "Clipped parts that do not hold their site",
		GeometryType: "POLYGON",
		Columns: []Column{
			{Name: "site_id", Type: Text},
			{Name: "island", Type: Integer},
			{Name: "area", Type: Real},
		},
	}
)

// property names accepted for site attributes, first match wins
var (
	siteIDKeys     = []string{"id", "site_id", "fid"}
	siteNameKeys   = []string{"name", "m"}
	siteRegionKeys = []string{"region", "r"}
)

type feature struct {
	properties *Properties
	geometry   geom.Geometry
	layer      string
}

func (f *feature) Properties() *Properties {
	return f.properties
}

func (f *feature) Geometry() geom.Geometry {
	return f.geometry
}

func (f *feature) Layer() string {
	return f.layer
}

func NewFeature(layer string, properties *Properties, geometry geom.Geometry) FeatureForLayer {
	if properties == nil {
		properties = orderedmap.New[string, interface{}]()
	}
	return &feature{properties: properties, geometry: geometry, layer: layer}
}

// readFeatures runs the source in the background and hands each feature to f.
func readFeatures(source Source, f func(Feature)) error {
	features := make(chan Feature)
	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		readErr = source.ReadFeatures(features)
	}()
	for feat := range features {
		f(feat)
	}
	<-done
	return readErr
}

// ReadIslands turns every polygon into an island. Multipolygons are split, one island per part,
// in source order.
func ReadIslands(source Source, logger *zap.Logger) ([]*catchment.Island, error) {
	var islands []*catchment.Island
	var featureCount, multiPolygonCount, skipped int
	add := func(p geom.Polygon) {
		if len(p) == 0 || len(p[0]) < 3 {
			skipped++
			return
		}
		islands = append(islands, &catchment.Island{Index: len(islands), Polygon: p})
	}
	err := readFeatures(source, func(f Feature) {
		featureCount++
		polygons, ok := geomhelp.Polygons(f.Geometry())
		if !ok {
			skipped++
			return
		}
		if _, multi := f.Geometry().(geom.MultiPolygon); multi {
			multiPolygonCount++
		}
		for _, p := range polygons {
			add(p)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("could not read boundaries: %w", err)
	}
	logger.Info("boundaries read",
		zap.Int("features", featureCount),
		zap.Int("multipolygons", multiPolygonCount),
		zap.Int("islands", len(islands)),
		zap.Int("skipped", skipped))
	return islands, nil
}

// ReadSites reads point features. Features without an id get their 1-based position.
func ReadSites(source Source, logger *zap.Logger) ([]*catchment.Site, error) {
	var sites []*catchment.Site
	var featureCount, skipped int
	err := readFeatures(source, func(f Feature) {
		featureCount++
		pt, ok := f.Geometry().(geom.Point)
		if !ok {
			skipped++
			logger.Warn("site without point geometry skipped", zap.Int("feature", featureCount))
			return
		}
		props := f.Properties()
		id := lookup(props, siteIDKeys)
		if id == "" {
			id = strconv.Itoa(featureCount)
		}
		sites = append(sites, &catchment.Site{
			ID:       id,
			Name:     lookup(props, siteNameKeys),
			Region:   lookup(props, siteRegionKeys),
			Location: pt,
			Island:   catchment.Unassigned,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("could not read sites: %w", err)
	}
	logger.Info("sites read", zap.Int("features", featureCount), zap.Int("sites", len(sites)), zap.Int("skipped", skipped))
	return sites, nil
}

func lookup(props *Properties, keys []string) string {
	if props == nil {
		return ""
	}
	for _, key := range keys {
		for p := props.Oldest(); p != nil; p = p.Next() {
			if !strings.EqualFold(p.Key, key) || p.Value == nil {
				continue
			}
			switch v := p.Value.(type) {
			case string:
				return strings.TrimSpace(v)
			case []byte:
				return strings.TrimSpace(string(v))
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			default:
				return fmt.Sprint(v)
			}
		}
	}
	return ""
}

// AreaFeatures converts a result into features for AreasLayer and FragmentsLayer, in result order.
func AreaFeatures(result *catchment.Result, sites []*catchment.Site) []FeatureForLayer {
	siteByID := make(map[string]*catchment.Site, len(sites))
	for _, s := range sites {
		siteByID[s.ID] = s
	}
	features := make([]FeatureForLayer, 0, len(result.Areas)+len(result.Fragments))
	for _, a := range result.Areas {
		props := orderedmap.New[string, interface{}]()
		props.Set("site_id", a.SiteID)
		var name, region string
		if s, ok := siteByID[a.SiteID]; ok {
			name, region = s.Name, s.Region
		}
		props.Set("name", name)
		props.Set("region", region)
		props.Set("island", int64(a.Island))
		props.Set("area", a.Size)
		props.Set("shortcut", a.Shortcut)
		features = append(features, NewFeature(AreasLayer.Name, props, a.Polygon))
	}
	for _, f := range result.Fragments {
		props := orderedmap.New[string, interface{}]()
		props.Set("site_id", f.SiteID)
		props.Set("island", int64(f.Island))
		props.Set("area", f.Size)
		features = append(features, NewFeature(FragmentsLayer.Name, props, f.Polygon))
	}
	return features
}

// WriteResult writes areas and fragments to the targets keyed by layer name.
// Layers without a target are dropped.
func WriteResult(result *catchment.Result, sites []*catchment.Site, targets map[string]Target, logger *zap.Logger) error {
	features := make(chan FeatureForLayer)
	go func() {
		defer close(features)
		for _, f := range AreaFeatures(result, sites) {
			features <- f
		}
	}()
	err := writeFeaturesToTargets(features, targets)
	logger.Info("results written", zap.Int("areas", len(result.Areas)), zap.Int("fragments", len(result.Fragments)), zap.Int("targets", len(targets)))
	return err
}

// writeFeaturesToTargets starts a goroutine per target and distributes the incoming features by layer.
func writeFeaturesToTargets(features <-chan FeatureForLayer, targets map[string]Target) error {
	targetChannels := make(map[string]chan<- Feature, len(targets))
	errs := make([]error, 0, len(targets))
	mu := sync.Mutex{}
	wg := sync.WaitGroup{}

	for layer, target := range targets {
		targetChannel := make(chan Feature)
		targetChannels[layer] = targetChannel
		wg.Add(1)
		go func(layer string, target Target, in <-chan Feature) {
			defer wg.Done()
			if err := target.WriteFeatures(in); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("could not write layer %s: %w", layer, err))
				mu.Unlock()
			}
		}(layer, target, targetChannel)
	}

	for feature := range features {
		if channel, ok := targetChannels[feature.Layer()]; ok {
			channel <- feature
		}
	}

	// close the channels, the targets will do their last writing
	for _, targetChannel := range targetChannels {
		close(targetChannel)
	}

	wg.Wait()
	return multierr.Combine(errs...)
}
