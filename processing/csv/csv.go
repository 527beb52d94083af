// Package csv reads sites from a delimited text file with a header row.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-spatial/geom"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/catchment/processing"
)

var (
	xKeys = []string{"x", "lon", "lo", "lng", "longitude"}
	yKeys = []string{"y", "lat", "la", "latitude"}

	ErrNoCoordinates = errors.New("no coordinate columns in header")
)

type Source struct {
	path  string
	comma rune
}

func NewSource(path string) *Source {
	return &Source{path: path, comma: ','}
}

func (s *Source) ReadFeatures(features chan<- processing.Feature) error {
	defer close(features)
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return read(f, s.comma, features)
}

func read(r io.Reader, comma rune, features chan<- processing.Feature) error {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("could not read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	xCol, yCol := findColumn(header, xKeys), findColumn(header, yKeys)
	if xCol < 0 || yCol < 0 {
		return fmt.Errorf("%w: %s", ErrNoCoordinates, strings.Join(header, ","))
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(record[xCol]), 64)
		if err != nil {
			return fmt.Errorf("line %d: bad %s: %w", line, header[xCol], err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[yCol]), 64)
		if err != nil {
			return fmt.Errorf("line %d: bad %s: %w", line, header[yCol], err)
		}
		props := orderedmap.New[string, interface{}](orderedmap.WithCapacity[string, interface{}](len(header)))
		for i, name := range header {
			if i == xCol || i == yCol {
				continue
			}
			props.Set(name, record[i])
		}
		features <- processing.NewFeature("", props, geom.Point{x, y})
	}
}

func findColumn(header []string, keys []string) int {
	for _, key := range keys {
		for i, h := range header {
			if strings.EqualFold(h, key) {
				return i
			}
		}
	}
	return -1
}
