package gpkg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/pdok/catchment/processing"
)

const geometryColumn = "geom"

var ErrNoTable = errors.New("no matching feature table")

// WGS84 is used when the input carries no reference system, e.g. GeoJSON.
var WGS84 = gpkg.SpatialReferenceSystem{
	Name:                   "WGS 84 geodetic",
	ID:                     4326,
	Organization:           "EPSG",
	OrganizationCoordsysID: 4326,
	Definition:             `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
	Description:            "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
}

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

type table struct {
	name    string
	columns []column
	gcolumn string
	gtype   gpkg.GeometryType
	srs     gpkg.SpatialReferenceSystem
}

// geometryTypeFromString returns the numeric value of a geometry string
func geometryTypeFromString(geometrytype string) gpkg.GeometryType {
	switch strings.ToUpper(geometrytype) {
	case "GEOMETRY":
		return gpkg.Geometry
	case "POINT":
		return gpkg.Point
	case "LINESTRING":
		return gpkg.Linestring
	case "POLYGON":
		return gpkg.Polygon
	case "MULTIPOINT":
		return gpkg.MultiPoint
	case "MULTILINESTRING":
		return gpkg.MultiLinestring
	case "MULTIPOLYGON":
		return gpkg.MultiPolygon
	case "GEOMETRYCOLLECTION":
		return gpkg.GeometryCollection
	default:
		return gpkg.Geometry
	}
}

type SourceGeopackage struct {
	handle *gpkg.Handle
	table  table
}

// OpenSource opens the named feature table, or the first feature table of one of
// the wanted geometry types when tableName is empty.
func OpenSource(file, tableName string, wanted ...gpkg.GeometryType) (*SourceGeopackage, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("error opening source GeoPackage: %w", err)
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	source := &SourceGeopackage{handle: handle}
	tables, err := source.tableInfo()
	if err != nil {
		handle.Close()
		return nil, err
	}
	for _, t := range tables {
		if tableName != "" {
			if t.name == tableName {
				source.table = t
				return source, nil
			}
			continue
		}
		if len(wanted) == 0 || containsType(wanted, t.gtype) {
			source.table = t
			return source, nil
		}
	}
	handle.Close()
	return nil, fmt.Errorf("%w in %s (table %q)", ErrNoTable, file, tableName)
}

func containsType(types []gpkg.GeometryType, t gpkg.GeometryType) bool {
	for _, tt := range types {
		if tt == t || t == gpkg.Geometry {
			return true
		}
	}
	return false
}

func (source *SourceGeopackage) Close() error {
	return source.handle.Close()
}

func (source *SourceGeopackage) TableName() string {
	return source.table.name
}

func (source *SourceGeopackage) SRS() gpkg.SpatialReferenceSystem {
	return source.table.srs
}

func (source *SourceGeopackage) ReadFeatures(features chan<- processing.Feature) error {
	defer close(features)
	rows, err := source.handle.Query(source.table.selectSQL())
	if err != nil {
		return fmt.Errorf("could not query %s: %w", source.table.name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error reading the columns: %w", err)
	}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		valPtrs := make([]interface{}, len(cols))
		for i := 0; i < len(cols); i++ {
			valPtrs[i] = &vals[i]
		}
		if err = rows.Scan(valPtrs...); err != nil {
			return fmt.Errorf("err reading row values: %w", err)
		}

		props := orderedmap.New[string, interface{}]()
		var geometry geom.Geometry
		for i, colName := range cols {
			if colName == source.table.gcolumn {
				raw, ok := vals[i].([]byte)
				if !ok {
					continue
				}
				wkbgeom, err := gpkg.DecodeGeometry(raw)
				if err != nil {
					return fmt.Errorf("error decoding the geometry: %w", err)
				}
				geometry = wkbgeom.Geometry
				continue
			}
			switch v := vals[i].(type) {
			case []uint8:
				props.Set(colName, string(v))
			case int64, float64, string, bool, time.Time, nil:
				props.Set(colName, v)
			default:
				return fmt.Errorf("unexpected type for sqlite column data: %v: %T", colName, v)
			}
		}
		features <- processing.NewFeature(source.table.name, props, geometry)
	}
	return rows.Err()
}

func (source *SourceGeopackage) tableInfo() ([]table, error) {
	query := `SELECT table_name, column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns;`
	rows, err := source.handle.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying %v: %w", query, err)
	}
	defer rows.Close()

	var tables []table
	for rows.Next() {
		var t table
		var gtype string
		var srsID int
		if err := rows.Scan(&t.name, &t.gcolumn, &gtype, &srsID); err != nil {
			return nil, fmt.Errorf("error reading the source table information: %w", err)
		}
		tables = append(tables, t)
		tables[len(tables)-1].gtype = geometryTypeFromString(gtype)
		tables[len(tables)-1].srs.ID = srsID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// the rows must be closed before querying again on sqlite
	rows.Close()
	for i := range tables {
		if tables[i].columns, err = getTableColumns(source.handle, tables[i].name); err != nil {
			return nil, err
		}
		tables[i].srs = getSpatialReferenceSystem(source.handle, tables[i].srs.ID)
	}
	return tables, nil
}

// TargetGeopackage writes layers into one GeoPackage. Writes of all layers are
// serialized, sqlite allows one writer at a time.
type TargetGeopackage struct {
	handle   *gpkg.Handle
	srs      gpkg.SpatialReferenceSystem
	pagesize int
	logger   *zap.Logger
	mu       sync.Mutex
}

func OpenTarget(file string, srs gpkg.SpatialReferenceSystem, overwrite bool, pagesize int, logger *zap.Logger) (*TargetGeopackage, error) {
	if overwrite {
		err := os.Remove(file)
		var pathError *os.PathError
		if err != nil && !(errors.As(err, &pathError) && errors.Is(pathError.Err, syscall.ENOENT)) {
			return nil, fmt.Errorf("could not remove target file: %w", err)
		}
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	if err := handle.UpdateSRS(srs); err != nil {
		handle.Close()
		return nil, err
	}
	if pagesize <= 0 {
		pagesize = 1000
	}
	return &TargetGeopackage{handle: handle, srs: srs, pagesize: pagesize, logger: logger}, nil
}

func (target *TargetGeopackage) Close() error {
	return target.handle.Close()
}

// Layer creates the table for layer and returns a processing.Target writing into it.
func (target *TargetGeopackage) Layer(layer processing.Layer) (processing.Target, error) {
	t := table{
		name:    layer.Name,
		gcolumn: geometryColumn,
		gtype:   geometryTypeFromString(layer.GeometryType),
		srs:     target.srs,
		columns: []column{{name: "fid", ctype: "INTEGER", notnull: 1, pk: 1}},
	}
	for _, c := range layer.Columns {
		t.columns = append(t.columns, column{name: c.Name, ctype: string(c.Type)})
	}
	t.columns = append(t.columns, column{name: geometryColumn, ctype: layer.GeometryType})

	target.mu.Lock()
	defer target.mu.Unlock()
	if err := buildTable(target.handle, t, layer.Description); err != nil {
		return nil, err
	}
	return &layerTarget{parent: target, table: t, layer: layer}, nil
}

type layerTarget struct {
	parent *TargetGeopackage
	table  table
	layer  processing.Layer
	ext    *geom.Extent
}

func (lt *layerTarget) WriteFeatures(features <-chan processing.Feature) error {
	var page []processing.Feature
	var err error
	written := 0
	for feature := range features {
		if err != nil {
			continue // keep draining
		}
		page = append(page, feature)
		if len(page)%lt.parent.pagesize == 0 {
			err = lt.writeFeatures(page)
			written += len(page)
			page = nil
		}
	}
	if err != nil {
		return err
	}
	if err = lt.writeFeatures(page); err != nil {
		return err
	}
	written += len(page)
	lt.parent.logger.Debug("layer written", zap.String("table", lt.table.name), zap.Int("features", written))
	if lt.ext == nil {
		return nil
	}
	lt.parent.mu.Lock()
	defer lt.parent.mu.Unlock()
	return lt.parent.handle.UpdateGeometryExtent(lt.table.name, lt.ext)
}

func (lt *layerTarget) writeFeatures(features []processing.Feature) error {
	if len(features) == 0 {
		return nil
	}
	lt.parent.mu.Lock()
	defer lt.parent.mu.Unlock()

	tx, err := lt.parent.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}
	stmt, err := tx.Prepare(lt.table.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		sb, err := gpkg.NewBinary(int32(lt.table.srs.ID), f.Geometry())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not create a binary geometry: %w", err)
		}
		data := make([]interface{}, 0, len(lt.layer.Columns)+1)
		for _, c := range lt.layer.Columns {
			v, _ := f.Properties().Get(c.Name)
			data = append(data, v)
		}
		data = append(data, sb)
		if _, err = stmt.Exec(data...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not insert into %s: %w", lt.table.name, err)
		}

		if lt.ext == nil {
			ext, err := geom.NewExtentFromGeometry(f.Geometry())
			if err != nil {
				lt.parent.logger.Warn("failed to create new extent", zap.Error(err))
				continue
			}
			lt.ext = ext
		} else if err := lt.ext.AddGeometry(f.Geometry()); err != nil {
			lt.parent.logger.Warn("failed to grow extent", zap.Error(err))
		}
	}
	return tx.Commit()
}

// createSQL creates a CREATE statement on the given table and column information
func (t table) createSQL() string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.name)
	var columnparts []string
	for _, column := range t.columns {
		columnpart := `"` + column.name + `" ` + column.ctype
		if column.notnull == 1 {
			columnpart = columnpart + ` NOT NULL`
		}
		if column.pk == 1 {
			columnpart = columnpart + ` PRIMARY KEY AUTOINCREMENT`
		}
		columnparts = append(columnparts, columnpart)
	}
	return create + `(` + strings.Join(columnparts, `, `) + `);`
}

// selectSQL build a SELECT statement based on the table and columns
func (t table) selectSQL() string {
	var csql []string
	for _, c := range t.columns {
		csql = append(csql, `"`+c.name+`"`)
	}
	return `SELECT ` + strings.Join(csql, `,`) + ` FROM "` + t.name + `";`
}

// insertSQL builds the INSERT statement, the primary key is left to sqlite
// and the geometry goes last
func (t table) insertSQL() string {
	var csql, vsql []string
	for _, c := range t.columns {
		if c.name != t.gcolumn && c.pk != 1 {
			csql = append(csql, `"`+c.name+`"`)
			vsql = append(vsql, `?`)
		}
	}
	csql = append(csql, `"`+t.gcolumn+`"`)
	vsql = append(vsql, `?`)
	return `INSERT INTO "` + t.name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
}

// getSpatialReferenceSystem extracts this based on the given SRS id
func getSpatialReferenceSystem(h *gpkg.Handle, id int) gpkg.SpatialReferenceSystem {
	var srs gpkg.SpatialReferenceSystem
	query := `SELECT srs_name, srs_id, organization, organization_coordsys_id, definition, description FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`

	row := h.QueryRow(query, id)
	var description *string
	if err := row.Scan(&srs.Name, &srs.ID, &srs.Organization, &srs.OrganizationCoordsysID, &srs.Definition, &description); err != nil {
		srs.ID = id
	}
	if description != nil {
		srs.Description = *description
	}
	return srs
}

// getTableColumns collects the column information of a given table
func getTableColumns(h *gpkg.Handle, table string) ([]column, error) {
	var columns []column
	rows, err := h.Query(fmt.Sprintf(`PRAGMA table_info('%v');`, table))
	if err != nil {
		return nil, fmt.Errorf("could not read columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var column column
		if err := rows.Scan(&column.cid, &column.name, &column.ctype, &column.notnull, &column.dfltValue, &column.pk); err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// buildTable creates a given destination table with the necessary gpkg_ information
func buildTable(h *gpkg.Handle, t table, description string) error {
	if _, err := h.Exec(t.createSQL()); err != nil {
		return fmt.Errorf("error building table %s in target GeoPackage: %w", t.name, err)
	}
	err := h.AddGeometryTable(gpkg.TableDescription{
		Name:          t.name,
		ShortName:     t.name,
		Description:   description,
		GeometryField: t.gcolumn,
		GeometryType:  t.gtype,
		SRS:           int32(t.srs.ID),
		Z:             gpkg.Prohibited,
		M:             gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table %s in target GeoPackage: %w", t.name, err)
	}
	return nil
}
