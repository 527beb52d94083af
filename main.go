package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	geompkg "github.com/go-spatial/geom/encoding/gpkg"
	"github.com/iancoleman/strcase"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pdok/catchment/catchment"
	"github.com/pdok/catchment/config"
	"github.com/pdok/catchment/kernel"
	"github.com/pdok/catchment/logging"
	"github.com/pdok/catchment/metrics"
	"github.com/pdok/catchment/processing"
	"github.com/pdok/catchment/processing/csv"
	"github.com/pdok/catchment/processing/geojson"
	"github.com/pdok/catchment/processing/gpkg"
	"github.com/pdok/catchment/sieve"
	"github.com/pdok/catchment/visits"
	"github.com/pdok/catchment/voronoi"
)

const LOGLEVEL string = `logLevel`

const BOUNDARIES string = `boundaries`
const BOUNDARYTABLE string = `boundaryTable`
const SITES string = `sites`
const SITETABLE string = `siteTable`
const TARGETGPKG string = `targetGpkg`
const TARGETGEOJSON string = `targetGeojson`
const OVERWRITE string = `overwrite`
const PAGESIZE string = `pagesize`
const CONFIG string = `config`
const INITIALBUFFER string = `initialBuffer`
const GROWTHFACTOR string = `growthFactor`
const MAXROUNDS string = `maxRounds`
const CLIPTOBUFFERED string = `clipToBuffered`
const WORKERS string = `workers`
const SIEVERESOLUTION string = `sieveResolution`
const VORONOIMARGIN string = `voronoiMargin`
const SUMMARY string = `summary`
const LARGEST string = `largest`
const METRICSTEXTFILE string = `metricsTextfile`

const CATCHMENTS string = `catchments`
const CATCHMENTTABLE string = `catchmentTable`
const VISITLOG string = `log`
const EVENTSUFFIX string = `eventSuffix`
const SITESUFFIX string = `siteSuffix`
const JSONOUTPUT string = `json`

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake(name)}
}

//nolint:funlen
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("could not load .env: %s", err)
	}

	app := cli.NewApp()
	app.Name = "catchment"
	app.Usage = "Divides a landmass into one catchment area per site"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Aliases: []string{"l"},
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: envVars(LOGLEVEL),
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "areas",
			Usage:  "Compute catchment areas and write them to GeoPackage and/or GeoJSON",
			Flags:  areasFlags(),
			Action: areas,
		},
		{
			Name:   "visits",
			Usage:  "Summarise visit logs against written catchment areas",
			Flags:  visitsFlags(),
			Action: summariseVisits,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

//nolint:funlen
func areasFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     BOUNDARIES,
			Aliases:  []string{"b"},
			Usage:    "Boundary polygons, GPKG or GeoJSON",
			Required: true,
			EnvVars:  envVars(BOUNDARIES),
		},
		&cli.StringFlag{
			Name:    BOUNDARYTABLE,
			Usage:   "Table in the boundary GPKG, the first polygon table when empty",
			EnvVars: envVars(BOUNDARYTABLE),
		},
		&cli.StringFlag{
			Name:     SITES,
			Aliases:  []string{"s"},
			Usage:    "Sites, CSV, GeoJSON or GPKG",
			Required: true,
			EnvVars:  envVars(SITES),
		},
		&cli.StringFlag{
			Name:    SITETABLE,
			Usage:   "Table in the site GPKG, the first point table when empty",
			EnvVars: envVars(SITETABLE),
		},
		&cli.StringFlag{
			Name:    TARGETGPKG,
			Aliases: []string{"t"},
			Usage:   "Target GPKG, gets the tables " + processing.AreasLayer.Name + " and " + processing.FragmentsLayer.Name,
			EnvVars: envVars(TARGETGPKG),
		},
		&cli.StringFlag{
			Name:    TARGETGEOJSON,
			Aliases: []string{"g"},
			Usage:   "Target GeoJSON (prefix). E.g. out.geojson gives out_areas.geojson and out_fragments.geojson",
			EnvVars: envVars(TARGETGEOJSON),
		},
		&cli.BoolFlag{
			Name:    OVERWRITE,
			Aliases: []string{"o"},
			Usage:   "Overwrite a target GPKG if it exists",
			EnvVars: envVars(OVERWRITE),
		},
		&cli.IntFlag{
			Name:    PAGESIZE,
			Aliases: []string{"p"},
			Usage:   "Page Size, how many features are written per transaction to a target GPKG",
			Value:   1000,
			EnvVars: envVars(PAGESIZE),
		},
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "JSON config file, flags below override it",
			EnvVars: envVars(CONFIG),
		},
		&cli.Float64Flag{
			Name:    INITIALBUFFER,
			Usage:   "Buffer step of the first assignment round",
			EnvVars: envVars(INITIALBUFFER),
		},
		&cli.Float64Flag{
			Name:    GROWTHFACTOR,
			Usage:   "Growth of the buffer step per round, > 1",
			EnvVars: envVars(GROWTHFACTOR),
		},
		&cli.IntFlag{
			Name:    MAXROUNDS,
			Usage:   "Give up assigning sites after this many rounds",
			EnvVars: envVars(MAXROUNDS),
		},
		&cli.BoolFlag{
			Name:    CLIPTOBUFFERED,
			Usage:   "Clip cells to the buffered islands instead of the original ones",
			EnvVars: envVars(CLIPTOBUFFERED),
		},
		&cli.IntFlag{
			Name:    WORKERS,
			Aliases: []string{"w"},
			Usage:   "Sites clipped in parallel, 0 is one per CPU",
			EnvVars: envVars(WORKERS),
		},
		&cli.Float64Flag{
			Name:    SIEVERESOLUTION,
			Usage:   "Fill island holes smaller than resolution^2, 0 keeps all holes",
			EnvVars: envVars(SIEVERESOLUTION),
		},
		&cli.Float64Flag{
			Name:    VORONOIMARGIN,
			Usage:   "Margin around the input for outer Voronoi cells, as a fraction of its span",
			EnvVars: envVars(VORONOIMARGIN),
		},
		&cli.StringFlag{
			Name:    SUMMARY,
			Usage:   "Write a JSON run summary to this file",
			EnvVars: envVars(SUMMARY),
		},
		&cli.IntFlag{
			Name:    LARGEST,
			Usage:   "Number of largest catchments listed in the summary",
			Value:   10,
			EnvVars: envVars(LARGEST),
		},
		&cli.StringFlag{
			Name:    METRICSTEXTFILE,
			Aliases: []string{"m"},
			Usage:   "Write Prometheus metrics to this file, for the node_exporter textfile collector",
			EnvVars: envVars(METRICSTEXTFILE),
		},
	}
}

func visitsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     CATCHMENTS,
			Aliases:  []string{"a"},
			Usage:    "Catchment areas written by the areas command, GPKG or GeoJSON",
			Required: true,
			EnvVars:  envVars(CATCHMENTS),
		},
		&cli.StringFlag{
			Name:    CATCHMENTTABLE,
			Usage:   "Table in the catchment GPKG",
			Value:   processing.AreasLayer.Name,
			EnvVars: envVars(CATCHMENTTABLE),
		},
		&cli.StringSliceFlag{
			Name:     VISITLOG,
			Aliases:  []string{"v"},
			Usage:    "Visit log CSV with Event and Runs columns. Repeat to merge the logs of a group",
			Required: true,
			EnvVars:  envVars(VISITLOG),
		},
		&cli.StringFlag{
			Name:    EVENTSUFFIX,
			Usage:   "Removed from event names in the logs",
			Value:   visits.DefaultEventSuffix,
			EnvVars: envVars(EVENTSUFFIX),
		},
		&cli.StringFlag{
			Name:    SITESUFFIX,
			Usage:   "Removed from catchment names before matching them to events",
			Value:   visits.DefaultSiteSuffix,
			EnvVars: envVars(SITESUFFIX),
		},
		&cli.BoolFlag{
			Name:    JSONOUTPUT,
			Usage:   "Print the summary as JSON",
			EnvVars: envVars(JSONOUTPUT),
		},
	}
}

//nolint:funlen,cyclop
func areas(c *cli.Context) error {
	logger, err := logging.New(c.String(LOGLEVEL))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.String(TARGETGPKG) == "" && c.String(TARGETGEOJSON) == "" {
		return fmt.Errorf("need at least one of --%s and --%s", TARGETGPKG, TARGETGEOJSON)
	}

	islandSource, closeIslands, srs, err := openSource(c.String(BOUNDARIES), c.String(BOUNDARYTABLE), geompkg.Polygon, geompkg.MultiPolygon)
	if err != nil {
		return err
	}
	defer closeIslands()
	islands, err := processing.ReadIslands(islandSource, logger)
	if err != nil {
		return err
	}

	siteSource, closeSites, _, err := openSource(c.String(SITES), c.String(SITETABLE), geompkg.Point)
	if err != nil {
		return err
	}
	defer closeSites()
	sites, err := processing.ReadSites(siteSource, logger)
	if err != nil {
		return err
	}

	if filled := sieve.Islands(islands, cfg.SieveResolution); filled > 0 {
		logger.Info("filled small holes", zap.Int("holes", filled), zap.Float64("resolution", cfg.SieveResolution))
	}

	logger.Info("=== start catchments ===", zap.Int("islands", len(islands)), zap.Int("sites", len(sites)))
	start := time.Now()

	k := kernel.NewPlanar()
	frame, err := voronoi.Frame(sites, islands, cfg.VoronoiMargin)
	if err != nil {
		return err
	}
	cells, err := voronoi.NewGenerator(k, cfg.VoronoiMargin, logger).Cells(sites, frame)
	if err != nil {
		return err
	}
	result, err := catchment.NewPipeline(k, cfg.PipelineOptions(), logger).Run(islands, sites, cells)
	if err != nil {
		return err
	}
	took := time.Since(start)
	if err := result.Summary.Err(); err != nil {
		logger.Warn("some sites got no catchment", zap.Int("anomalies", len(result.Summary.Anomalies)), zap.Error(err))
	}

	if targetPath := c.String(TARGETGPKG); targetPath != "" {
		if err := writeGPKG(targetPath, srs, c.Bool(OVERWRITE), c.Int(PAGESIZE), result, sites, logger); err != nil {
			return err
		}
	}
	if targetPrefix := c.String(TARGETGEOJSON); targetPrefix != "" {
		targetPathFmt := injectSuffixIntoPath(targetPrefix)
		targets := map[string]processing.Target{
			processing.AreasLayer.Name:     geojson.NewTarget(fmt.Sprintf(targetPathFmt, "areas")),
			processing.FragmentsLayer.Name: geojson.NewTarget(fmt.Sprintf(targetPathFmt, "fragments")),
		}
		if err := processing.WriteResult(result, sites, targets, logger); err != nil {
			return err
		}
	}

	if summaryPath := c.String(SUMMARY); summaryPath != "" {
		if err := writeSummary(summaryPath, result, c.Int(LARGEST)); err != nil {
			return err
		}
	}
	if metricsPath := c.String(METRICSTEXTFILE); metricsPath != "" {
		recorder := metrics.NewRecorder()
		recorder.Observe(len(sites), len(islands), result, took)
		if err := recorder.WriteTextfile(metricsPath); err != nil {
			return fmt.Errorf("could not write metrics: %w", err)
		}
	}

	logger.Info("=== done catchments ===", zap.Duration("took", took), zap.Int("areas", len(result.Areas)))
	return nil
}

func summariseVisits(c *cli.Context) error {
	logger, err := logging.New(c.String(LOGLEVEL))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	source, closeSource, _, err := openSource(c.String(CATCHMENTS), c.String(CATCHMENTTABLE))
	if err != nil {
		return err
	}
	defer closeSource()
	catchments, err := visits.ReadCatchments(source)
	if err != nil {
		return err
	}

	logs := make([]*visits.Log, 0, len(c.StringSlice(VISITLOG)))
	for _, p := range c.StringSlice(VISITLOG) {
		l, err := visits.ReadLogFile(p, c.String(EVENTSUFFIX))
		if err != nil {
			return err
		}
		logger.Debug("read visit log", zap.String("path", p), zap.Int("events", l.Len()))
		logs = append(logs, l)
	}
	stats := visits.Summarise(visits.Merge(logs...), catchments, c.String(SITESUFFIX))

	if c.Bool(JSONOUTPUT) {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	for _, line := range stats.Lines() {
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

// loadConfig starts from the defaults or the config file and applies the flags that were set.
func loadConfig(c *cli.Context) (config.Config, error) {
	var cfg config.Config
	var err error
	if p := c.String(CONFIG); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return cfg, err
	}
	if c.IsSet(INITIALBUFFER) {
		cfg.InitialBuffer = c.Float64(INITIALBUFFER)
	}
	if c.IsSet(GROWTHFACTOR) {
		cfg.GrowthFactor = c.Float64(GROWTHFACTOR)
	}
	if c.IsSet(MAXROUNDS) {
		cfg.MaxRounds = c.Int(MAXROUNDS)
	}
	if c.IsSet(CLIPTOBUFFERED) {
		cfg.ClipToBuffered = c.Bool(CLIPTOBUFFERED)
	}
	if c.IsSet(WORKERS) {
		cfg.Workers = c.Int(WORKERS)
	}
	if c.IsSet(SIEVERESOLUTION) {
		cfg.SieveResolution = c.Float64(SIEVERESOLUTION)
	}
	if c.IsSet(VORONOIMARGIN) {
		cfg.VoronoiMargin = c.Float64(VORONOIMARGIN)
	}
	return cfg, cfg.Validate()
}

// openSource picks a reader by file extension. GPKG sources report their reference system, the others WGS84.
func openSource(p, table string, wanted ...geompkg.GeometryType) (processing.Source, func(), geompkg.SpatialReferenceSystem, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".gpkg":
		source, err := gpkg.OpenSource(p, table, wanted...)
		if err != nil {
			return nil, nil, geompkg.SpatialReferenceSystem{}, err
		}
		return source, func() { source.Close() }, source.SRS(), nil
	case ".geojson", ".json":
		return geojson.NewSource(p), func() {}, gpkg.WGS84, nil
	case ".csv", ".txt":
		return csv.NewSource(p), func() {}, gpkg.WGS84, nil
	default:
		return nil, nil, geompkg.SpatialReferenceSystem{}, fmt.Errorf("unsupported input %s, expected .gpkg, .geojson or .csv", p)
	}
}

func writeGPKG(targetPath string, srs geompkg.SpatialReferenceSystem, overwrite bool, pagesize int,
	result *catchment.Result, sites []*catchment.Site, logger *zap.Logger) error {
	target, err := gpkg.OpenTarget(targetPath, srs, overwrite, pagesize, logger)
	if err != nil {
		return err
	}
	defer target.Close()

	targets := make(map[string]processing.Target, 2)
	for _, layer := range []processing.Layer{processing.AreasLayer, processing.FragmentsLayer} {
		t, err := target.Layer(layer)
		if err != nil {
			return fmt.Errorf("error initialization the target GeoPackage: %w", err)
		}
		targets[layer.Name] = t
	}
	return processing.WriteResult(result, sites, targets, logger)
}

type anomalyEntry struct {
	Kind   catchment.AnomalyKind `json:"kind"`
	SiteID string                `json:"siteId"`
	Error  string                `json:"error"`
}

type largestEntry struct {
	SiteID string  `json:"siteId"`
	Island int     `json:"island"`
	Area   float64 `json:"area"`
}

func writeSummary(p string, result *catchment.Result, n int) error {
	out := struct {
		catchment.Summary
		Anomalies []anomalyEntry `json:"anomalies"`
		Largest   []largestEntry `json:"largest"`
	}{Summary: result.Summary}
	for _, a := range result.Summary.Anomalies {
		out.Anomalies = append(out.Anomalies, anomalyEntry{Kind: a.Kind, SiteID: a.SiteID, Error: a.Err.Error()})
	}
	for _, a := range result.Largest(n) {
		out.Largest = append(out.Largest, largestEntry{SiteID: a.SiteID, Island: a.Island, Area: a.Size})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func injectSuffixIntoPath(p string) string {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	name := file[:len(file)-len(ext)]
	return path.Join(dir, name+"_%v"+ext)
}
