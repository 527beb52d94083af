package catchment

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/pdok/catchment/mapslicehelp"
)

// Assigner places every site on an island, growing the island buffers until each site is covered.
type Assigner struct {
	kernel       Kernel
	initialStep  float64
	growthFactor float64
	maxRounds    int
	logger       *zap.Logger
}

// Assignment is the outcome of a converged assignment.
type Assignment struct {
	Rounds []Round
	// Islands maps site id to island index, in site order.
	Islands *orderedmap.OrderedMap[string, int]
}

func NewAssigner(kernel Kernel, initialStep, growthFactor float64, maxRounds int, logger *zap.Logger) *Assigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{
		kernel:       kernel,
		initialStep:  initialStep,
		growthFactor: growthFactor,
		maxRounds:    maxRounds,
		logger:       logger,
	}
}

// Assign runs rounds until every site lies within some buffered island.
// Each round adds the current step to every island's cumulative buffer, rebuilds the
// buffered polygons from the originals and tests all sites against all islands. Islands
// are visited in slice order, a site inside several buffered islands keeps the last one.
// Islands and sites are updated in place.
func (a *Assigner) Assign(islands []*Island, sites []*Site) (*Assignment, error) {
	var rounds []Round
	if len(islands) == 0 && len(sites) > 0 {
		return nil, &BoundaryCoverageFailure{Uncovered: siteIDs(sites)}
	}
	for _, island := range islands {
		island.Buffer = 0
		island.Buffered = nil
	}

	step := a.initialStep
	for round := 0; round < a.maxRounds; round++ {
		for _, island := range islands {
			island.Buffer += step
			buffered, err := a.kernel.Buffer(island.Polygon, island.Buffer)
			if err != nil {
				return nil, fmt.Errorf("could not buffer island %d by %g: %w", island.Index, island.Buffer, err)
			}
			island.Buffered = buffered
			island.SiteCount = 0
		}

		assigned := orderedmap.New[string, int](orderedmap.WithCapacity[string, int](len(sites)))
		for _, site := range sites {
			site.Island = Unassigned
		}
		for _, island := range islands {
			for _, site := range sites {
				if !a.kernel.Contains(island.Buffered, site.Location) {
					continue
				}
				site.Island = island.Index
				island.SiteCount++
			}
		}
		covered := 0
		for _, island := range islands {
			covered += island.SiteCount
		}
		for _, site := range sites {
			if site.Island != Unassigned {
				assigned.Set(site.ID, site.Island)
			}
		}

		rounds = append(rounds, Round{Step: step, Buffer: cumulative(islands), Covered: covered})
		a.logger.Debug("assignment round",
			zap.Int("round", round),
			zap.Float64("step", step),
			zap.Int("covered", covered),
			zap.Int("assigned", assigned.Len()),
			zap.Int("sites", len(sites)))

		// overlapping buffers count a site twice, so also require that every site is placed
		if covered >= len(sites) && assigned.Len() == len(sites) {
			a.logger.Info("all sites assigned to an island",
				zap.Int("rounds", len(rounds)),
				zap.Float64("buffer", rounds[len(rounds)-1].Buffer))
			return &Assignment{Rounds: rounds, Islands: assigned}, nil
		}
		if round+1 < a.maxRounds {
			step *= a.growthFactor
		}
	}

	failure := &BoundaryCoverageFailure{Rounds: len(rounds), Step: step}
	if len(rounds) > 0 {
		failure.Buffer = rounds[len(rounds)-1].Buffer
	}
	for _, site := range sites {
		if site.Island == Unassigned {
			failure.Uncovered = append(failure.Uncovered, site.ID)
		}
	}
	return nil, failure
}

// SitesPerIsland counts the sites each island ended up owning.
func (as *Assignment) SitesPerIsland(islands []*Island) map[int]int {
	owned := make(map[int]int, len(islands))
	for _, island := range islands {
		owned[island.Index] = mapslicehelp.CountVals(as.Islands, island.Index)
	}
	return owned
}

func cumulative(islands []*Island) float64 {
	if len(islands) == 0 {
		return 0
	}
	return islands[0].Buffer
}

func siteIDs(sites []*Site) []string {
	ids := make([]string, len(sites))
	for i, s := range sites {
		ids[i] = s.ID
	}
	return ids
}
