package catchment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-spatial/geom"

	"github.com/pdok/catchment/geomhelp"
)

var (
	ErrBoundaryCoverage  = errors.New("boundary coverage failure")
	ErrIntersectionEmpty = errors.New("geometry intersection empty")
	ErrInvalidGeometry   = errors.New("invalid geometry")
	ErrDuplicateSite     = errors.New("duplicate site id")
	ErrMissingCell       = errors.New("no voronoi cell for site")
)

const wktMaxLen = 80

// BoundaryCoverageFailure is returned when some sites stay outside every buffered island.
type BoundaryCoverageFailure struct {
	Rounds    int
	Step      float64
	Buffer    float64
	Uncovered []string
}

func (e *BoundaryCoverageFailure) Error() string {
	return fmt.Sprintf("%v: %d site(s) outside every island after %d round(s), last step %g, buffer %g: %s",
		ErrBoundaryCoverage, len(e.Uncovered), e.Rounds, e.Step, e.Buffer, strings.Join(e.Uncovered, ", "))
}

func (e *BoundaryCoverageFailure) Unwrap() error {
	return ErrBoundaryCoverage
}

// InvalidGeometryError is a clip result the resolver cannot turn into a single polygon.
type InvalidGeometryError struct {
	SiteID   string
	Reason   string
	Geometry geom.Geometry
}

func (e *InvalidGeometryError) Error() string {
	if e.Geometry == nil {
		return fmt.Sprintf("%v for site %s: %s", ErrInvalidGeometry, e.SiteID, e.Reason)
	}
	return fmt.Sprintf("%v for site %s: %s (%s)", ErrInvalidGeometry, e.SiteID, e.Reason,
		geomhelp.WktMustEncode(e.Geometry, wktMaxLen))
}

func (e *InvalidGeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

type AnomalyKind string

const (
	GeometryIntersectionEmpty AnomalyKind = "GeometryIntersectionEmpty"
	InvalidGeometry           AnomalyKind = "InvalidGeometryError"
)

// Anomaly is a per-site problem. The site gets no catchment area, the run continues.
type Anomaly struct {
	Kind   AnomalyKind
	SiteID string
	Err    error
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: site %s: %v", a.Kind, a.SiteID, a.Err)
}

func (a Anomaly) Unwrap() error {
	return a.Err
}

func newAnomaly(siteID string, err error) Anomaly {
	kind := InvalidGeometry
	if errors.Is(err, ErrIntersectionEmpty) {
		kind = GeometryIntersectionEmpty
	}
	return Anomaly{Kind: kind, SiteID: siteID, Err: err}
}
