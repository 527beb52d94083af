package catchment

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-spatial/geom"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pdok/catchment/geomhelp"
)

type Options struct {
	InitialBuffer  float64
	GrowthFactor   float64
	MaxRounds      int
	ClipToBuffered bool
	Workers        int
}

// Pipeline turns islands, sites and voronoi cells into one catchment area per site.
type Pipeline struct {
	kernel   Kernel
	options  Options
	logger   *zap.Logger
	assigner *Assigner
	clipper  *Clipper
	resolver *Resolver
}

type Result struct {
	Areas     []Area
	Fragments []UnresolvedFragment
	Summary   Summary
}

func NewPipeline(kernel Kernel, options Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	return &Pipeline{
		kernel:   kernel,
		options:  options,
		logger:   logger,
		assigner: NewAssigner(kernel, options.InitialBuffer, options.GrowthFactor, options.MaxRounds, logger),
		clipper:  NewClipper(kernel, options.ClipToBuffered),
		resolver: NewResolver(kernel),
	}
}

type siteJob struct {
	index int
	site  *Site
}

type siteOutcome struct {
	area      *Area
	fragments []UnresolvedFragment
	anomaly   *Anomaly
}

// Run assigns, clips, resolves and measures. A BoundaryCoverageFailure aborts the run,
// per-site problems end up as anomalies in the summary. Output follows site order.
func (p *Pipeline) Run(islands []*Island, sites []*Site, cells []VoronoiCell) (*Result, error) {
	if err := checkUniqueSites(sites); err != nil {
		return nil, err
	}
	assignment, err := p.assigner.Assign(islands, sites)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]*Island, len(islands))
	for _, island := range islands {
		byIndex[island.Index] = island
	}
	cellOf := make(map[string]geom.Polygon, len(cells))
	for _, cell := range cells {
		cellOf[cell.SiteID] = cell.Polygon
	}

	outcomes := make([]siteOutcome, len(sites))
	jobs := make(chan siteJob)
	wg := sync.WaitGroup{}
	for w := 0; w < p.options.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes[job.index] = p.processSite(job.site, byIndex[job.site.Island], cellOf)
			}
		}()
	}
	for i, site := range sites {
		jobs <- siteJob{index: i, site: site}
	}
	close(jobs)
	wg.Wait()

	result := &Result{Summary: newSummary(islands, assignment)}
	for _, outcome := range outcomes {
		if outcome.anomaly != nil {
			p.logger.Warn("site skipped",
				zap.String("site", outcome.anomaly.SiteID),
				zap.String("kind", string(outcome.anomaly.Kind)),
				zap.Error(outcome.anomaly.Err))
			result.Summary.Anomalies = append(result.Summary.Anomalies, *outcome.anomaly)
			continue
		}
		result.Areas = append(result.Areas, *outcome.area)
		result.Fragments = append(result.Fragments, outcome.fragments...)
	}
	result.Summary.Areas = len(result.Areas)
	result.Summary.Fragments = len(result.Fragments)
	p.logger.Info("catchment areas computed",
		zap.Int("areas", len(result.Areas)),
		zap.Int("fragments", len(result.Fragments)),
		zap.Int("anomalies", len(result.Summary.Anomalies)))
	return result, nil
}

func (p *Pipeline) processSite(site *Site, island *Island, cells map[string]geom.Polygon) siteOutcome {
	fail := func(err error) siteOutcome {
		anomaly := newAnomaly(site.ID, err)
		return siteOutcome{anomaly: &anomaly}
	}
	if island == nil {
		return fail(&InvalidGeometryError{SiteID: site.ID, Reason: fmt.Sprintf("site assigned to unknown island %d", site.Island)})
	}
	cell, ok := cells[site.ID]
	if !ok && island.SiteCount != 1 {
		return fail(&InvalidGeometryError{SiteID: site.ID, Reason: ErrMissingCell.Error()})
	}

	candidate, shortcut, err := p.clipper.Clip(site, island, cell)
	if err != nil {
		return fail(err)
	}
	polygon, rejected, err := p.resolver.Resolve(site, candidate)
	if err != nil {
		return fail(err)
	}

	outcome := siteOutcome{area: &Area{
		SiteID:   site.ID,
		Island:   island.Index,
		Polygon:  polygon,
		Size:     Measure(p.kernel, polygon),
		Shortcut: shortcut,
	}}
	if len(rejected) > 0 {
		p.logger.Debug("clip split into parts, keeping the one holding the site",
			zap.String("site", site.ID),
			zap.Int("rejected", len(rejected)),
			zap.String("wkt", geomhelp.WktMustEncodeSlice(rejected, wktMaxLen)))
	}
	for _, part := range rejected {
		outcome.fragments = append(outcome.fragments, UnresolvedFragment{
			SiteID:  site.ID,
			Island:  island.Index,
			Polygon: part,
			Size:    Measure(p.kernel, part),
		})
	}
	return outcome
}

func checkUniqueSites(sites []*Site) error {
	seen := make(map[string]struct{}, len(sites))
	var err error
	for _, site := range sites {
		if _, ok := seen[site.ID]; ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrDuplicateSite, site.ID))
		}
		seen[site.ID] = struct{}{}
	}
	return err
}
