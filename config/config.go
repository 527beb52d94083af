// Package config holds the tunables of a catchment run.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"

	"github.com/pdok/catchment/catchment"
)

type Config struct {
	// Distance added to every island in the first assignment round
	InitialBuffer float64 `default:"0.0056" validate:"gt=0" json:"initialBuffer"`
	// Factor the step grows by after each round that leaves sites uncovered
	GrowthFactor float64 `default:"1.001" validate:"gt=1" json:"growthFactor"`
	MaxRounds    int     `default:"10000" validate:"min=1" json:"maxRounds"`
	// Clip against the buffered island instead of the original one
	ClipToBuffered bool `default:"true" json:"clipToBuffered"`
	// 0 means one worker per CPU
	Workers int `default:"0" validate:"min=0" json:"workers"`
	// Holes in islands smaller than sieveResolution^2 are filled, 0 disables
	SieveResolution float64 `default:"0" validate:"min=0" json:"sieveResolution"`
	// Voronoi frame margin, as a fraction of the largest span of the input
	VoronoiMargin float64 `default:"1.0" validate:"gt=0" json:"voronoiMargin"`
}

func Default() (Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Load reads a JSON config file on top of the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return c, err
	}
	unknown, err := marshmallow.Unmarshal(data, &c, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return c, err
	}
	if len(unknown) > 0 {
		keys := make([]string, 0, len(unknown))
		for k := range unknown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return c, fmt.Errorf("unknown config key(s): %s", strings.Join(keys, ", "))
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

func (c Config) PipelineOptions() catchment.Options {
	return catchment.Options{
		InitialBuffer:  c.InitialBuffer,
		GrowthFactor:   c.GrowthFactor,
		MaxRounds:      c.MaxRounds,
		ClipToBuffered: c.ClipToBuffered,
		Workers:        c.Workers,
	}
}
