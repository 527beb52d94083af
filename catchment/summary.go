package catchment

import (
	"github.com/umpc/go-sortedmap"
	"go.uber.org/multierr"

	"github.com/pdok/catchment/mapslicehelp"
)

type IslandSummary struct {
	Index     int     `json:"index"`
	Contained int     `json:"contained"`
	Owned     int     `json:"owned"`
	Buffer    float64 `json:"buffer"`
}

// Summary describes how a run went.
type Summary struct {
	Islands   []IslandSummary `json:"islands"`
	Rounds    []Round         `json:"rounds"`
	Areas     int             `json:"areas"`
	Fragments int             `json:"fragments"`
	Anomalies []Anomaly       `json:"-"`
}

func newSummary(islands []*Island, assignment *Assignment) Summary {
	owned := assignment.SitesPerIsland(islands)
	s := Summary{Rounds: assignment.Rounds}
	for _, island := range islands {
		s.Islands = append(s.Islands, IslandSummary{
			Index:     island.Index,
			Contained: island.SiteCount,
			Owned:     owned[island.Index],
			Buffer:    island.Buffer,
		})
	}
	return s
}

// Err combines all anomalies into one error, nil when there were none.
func (s Summary) Err() error {
	var err error
	for _, a := range s.Anomalies {
		err = multierr.Append(err, a)
	}
	return err
}

// FinalRound is the round that converged.
func (s Summary) FinalRound() (Round, bool) {
	last := mapslicehelp.LastElement(s.Rounds)
	if last == nil {
		return Round{}, false
	}
	return *last, true
}

// Largest returns up to n areas ordered by size, biggest first. Equal sizes keep site order.
func (r *Result) Largest(n int) []Area {
	if n <= 0 || len(r.Areas) == 0 {
		return nil
	}
	bySize := sortedmap.New(len(r.Areas), func(x, y interface{}) bool {
		a, b := r.Areas[x.(int)], r.Areas[y.(int)]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return x.(int) < y.(int)
	})
	for i := range r.Areas {
		bySize.Insert(i, i)
	}
	var largest []Area
	for _, key := range bySize.Keys() {
		if len(largest) == n {
			break
		}
		largest = append(largest, r.Areas[bySize.Map()[key].(int)])
	}
	return largest
}
