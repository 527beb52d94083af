// Package visits summarises a personal visit log against computed catchment areas.
package visits

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/pdok/catchment/mapslicehelp"
	"github.com/pdok/catchment/processing"
)

const (
	DefaultEventSuffix = " parkrun"
	DefaultSiteSuffix  = " Park"
)

var ErrMissingColumn = errors.New("missing column")

// Log maps event names to the number of visits, in first seen order.
type Log = orderedmap.OrderedMap[string, int]

// NormaliseEvent strips suffix wherever it occurs and cuts the name at the first comma.
func NormaliseEvent(event, suffix string) string {
	if suffix != "" {
		event = strings.ReplaceAll(event, suffix, "")
	}
	if i := strings.Index(event, ","); i >= 0 {
		event = event[:i]
	}
	return strings.TrimSpace(event)
}

// MatchKey is the name a catchment is known by in visit logs.
func MatchKey(name, suffix string) string {
	if suffix != "" {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return strings.TrimSpace(name)
}

// ReadLog reads a CSV with Event and Runs columns. Rows missing either are skipped.
// Repeated events are added up.
func ReadLog(r io.Reader, eventSuffix string) (*Log, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	eventCol, runsCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "event":
			eventCol = i
		case "runs":
			runsCol = i
		}
	}
	if eventCol < 0 || runsCol < 0 {
		return nil, fmt.Errorf("%w: need Event and Runs, got %s", ErrMissingColumn, strings.Join(header, ","))
	}

	log := orderedmap.New[string, int]()
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return log, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if eventCol >= len(record) || runsCol >= len(record) {
			continue
		}
		event := NormaliseEvent(record[eventCol], eventSuffix)
		rawRuns := strings.TrimSpace(record[runsCol])
		if event == "" || rawRuns == "" {
			continue
		}
		runs, err := strconv.Atoi(rawRuns)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad runs %q: %w", line, rawRuns, err)
		}
		mapslicehelp.AddTo(log, event, runs)
	}
}

func ReadLogFile(path, eventSuffix string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	log, err := ReadLog(f, eventSuffix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return log, nil
}

// Merge adds up the logs of a group, events keep the order they were first seen in.
func Merge(logs ...*Log) *Log {
	merged := orderedmap.New[string, int]()
	for _, log := range logs {
		for p := log.Oldest(); p != nil; p = p.Next() {
			mapslicehelp.AddTo(merged, p.Key, p.Value)
		}
	}
	return merged
}

// PIndex counts p up while more than p events were visited more than p times.
func PIndex(runs []int) int {
	p := 0
	for {
		n := 0
		for _, r := range runs {
			if r > p {
				n++
			}
		}
		if n <= p {
			return p
		}
		p++
	}
}

type Catchment struct {
	Name   string
	Region string
	Area   float64
}

// ReadCatchments reads name, region and area from features written for processing.AreasLayer.
func ReadCatchments(source processing.Source) ([]Catchment, error) {
	features := make(chan processing.Feature)
	done := make(chan error, 1)
	go func() { done <- source.ReadFeatures(features) }()

	var catchments []Catchment
	for f := range features {
		props := f.Properties()
		c := Catchment{}
		if v, ok := props.Get("name"); ok && v != nil {
			c.Name = fmt.Sprint(v)
		}
		if v, ok := props.Get("region"); ok && v != nil {
			c.Region = fmt.Sprint(v)
		}
		if v, ok := props.Get("area"); ok {
			switch a := v.(type) {
			case float64:
				c.Area = a
			case int64:
				c.Area = float64(a)
			}
		}
		catchments = append(catchments, c)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return catchments, nil
}

type RegionStats struct {
	Region  string  `json:"region"`
	Visited int     `json:"visited"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type Stats struct {
	TotalVisits     int           `json:"totalVisits"`
	Distinct        int           `json:"distinct"`
	PIndex          int           `json:"pIndex"`
	TouristRatio    float64       `json:"touristRatio"`
	Favourite       string        `json:"favourite,omitempty"`
	FavouriteVisits int           `json:"favouriteVisits,omitempty"`
	SitesVisited    int           `json:"sitesVisited"`
	SitesTotal      int           `json:"sitesTotal"`
	SitesPercent    float64       `json:"sitesPercent"`
	AreaPercent     float64       `json:"areaPercent"`
	Regions         []RegionStats `json:"regions"`
}

// Summarise compares a log against the catchments. A catchment counts as visited when its
// name, without siteSuffix, appears in the log.
func Summarise(log *Log, catchments []Catchment, siteSuffix string) Stats {
	var s Stats
	events := mapslicehelp.OrderedMapKeys(log)
	runs := make([]int, 0, len(events))
	for p := log.Oldest(); p != nil; p = p.Next() {
		s.TotalVisits += p.Value
		runs = append(runs, p.Value)
	}
	s.Distinct = len(events)
	s.PIndex = PIndex(runs)
	if s.TotalVisits > 0 {
		s.TouristRatio = float64(s.Distinct) / float64(s.TotalVisits)
	}
	if log.Len() > 0 {
		favourite, visits, _ := mapslicehelp.FindFirstKeyWithMaxValue(log)
		s.Favourite, s.FavouriteVisits = favourite, visits
	}

	visited := mapslicehelp.AsKeys(events)
	regions := make(map[string]*RegionStats)
	var totalArea, visitedArea float64
	for _, c := range catchments {
		r, ok := regions[c.Region]
		if !ok {
			r = &RegionStats{Region: c.Region}
			regions[c.Region] = r
		}
		r.Total++
		s.SitesTotal++
		totalArea += c.Area
		if _, ok := visited[MatchKey(c.Name, siteSuffix)]; ok {
			r.Visited++
			s.SitesVisited++
			visitedArea += c.Area
		}
	}
	if s.SitesTotal > 0 {
		s.SitesPercent = float64(s.SitesVisited) / float64(s.SitesTotal) * 100
	}
	if totalArea > 0 {
		s.AreaPercent = visitedArea / totalArea * 100
	}
	names := maps.Keys(regions)
	slices.Sort(names)
	for _, name := range names {
		r := regions[name]
		r.Percent = float64(r.Visited) / float64(r.Total) * 100
		s.Regions = append(s.Regions, *r)
	}
	return s
}

// Lines renders the stats for a terminal.
func (s Stats) Lines() []string {
	lines := []string{
		fmt.Sprintf("Total runs: %d", s.TotalVisits),
		fmt.Sprintf("Different runs: %d", s.Distinct),
		fmt.Sprintf("p-index: %d", s.PIndex),
		fmt.Sprintf("Tourist ratio: %0.2f", s.TouristRatio),
		fmt.Sprintf("Different runs with a catchment: %d (%0.2f %%)", s.SitesVisited, s.SitesPercent),
		fmt.Sprintf("Area covered: %0.2f %%", s.AreaPercent),
	}
	if s.Favourite != "" {
		lines = append(lines, fmt.Sprintf("Most visited: %s (%d)", s.Favourite, s.FavouriteVisits))
	}
	for _, r := range s.Regions {
		region := r.Region
		if region == "" {
			region = "(no region)"
		}
		lines = append(lines, fmt.Sprintf("%s: %d/%d (%0.2f %%)", region, r.Visited, r.Total, r.Percent))
	}
	return lines
}
