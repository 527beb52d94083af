package processing

import (
	"github.com/go-spatial/geom"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties keeps attribute order, targets write columns in this order.
type Properties = orderedmap.OrderedMap[string, interface{}]

type Feature interface {
	Properties() *Properties
	Geometry() geom.Geometry
}

type FeatureForLayer interface {
	Feature
	Layer() string
}

// Source sends all its features and closes the channel, also on error.
type Source interface {
	ReadFeatures(chan<- Feature) error
}

// Target consumes the channel until it is closed.
type Target interface {
	WriteFeatures(<-chan Feature) error
}

type ColumnType string

const (
	Text    ColumnType = "TEXT"
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Boolean ColumnType = "BOOLEAN"
)

type Column struct {
	Name string
	Type ColumnType
}

// Layer describes one output table or file.
type Layer struct {
	Name         string
	Description  string
	GeometryType string
	Columns      []Column
}
