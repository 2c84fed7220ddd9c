package layer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the SQL differences between spatial backends.
type Dialect struct {
	Name         string
	geometryType func(srid int) string
	fromText     func(arg string, srid int) string
	envelope     func(srid int) string
	bboxOverlap  string
	spatialIndex func(table string) string
}

// DuckDB uses the spatial extension. Geometries carry no SRID.
var DuckDB = Dialect{
	Name:         "duckdb",
	geometryType: func(int) string { return "GEOMETRY" },
	fromText:     func(arg string, _ int) string { return "ST_GeomFromText(" + arg + ")" },
	envelope:     func(int) string { return "ST_MakeEnvelope($1, $2, $3, $4)" },
	bboxOverlap:  "ST_Intersects_Extent(%s, %s)",
}

// Postgres targets PostGIS.
var Postgres = Dialect{
	Name:         "postgres",
	geometryType: func(srid int) string { return fmt.Sprintf("geometry(Geometry, %d)", srid) },
	fromText: func(arg string, srid int) string {
		return fmt.Sprintf("ST_SetSRID(ST_GeomFromText(%s), %d)", arg, srid)
	},
	envelope:    func(srid int) string { return fmt.Sprintf("ST_MakeEnvelope($1, $2, $3, $4, %d)", srid) },
	bboxOverlap: "(%s && %s)",
	spatialIndex: func(table string) string {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_usable_gix ON %s USING GIST (usable_geometry)", table, table)
	},
}

// SQLStore reads layers from tables named layer_<id>.
//
// Columns: id, geometry (raw WKT text), usable_geometry (normalized native
// geometry, NULL until prepared), area_m2, area_ha, attributes (JSON text).
type SQLStore struct {
	q       Querier
	dialect Dialect
	srid    int
}

// NewSQLStore creates a store over q. srid tags geometries for dialects
// that track one.
func NewSQLStore(q Querier, d Dialect, srid int) *SQLStore {
	return &SQLStore{q: q, dialect: d, srid: srid}
}

// WithQuerier returns a copy of the store bound to q, e.g. a dedicated
// *sql.Conn of a worker.
func (s *SQLStore) WithQuerier(q Querier) *SQLStore {
	cp := *s
	cp.q = q
	return &cp
}

// Dialect returns the store's dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Table returns the table name of layer.
func Table(layer string) (string, error) {
	if err := ValidateID(layer); err != nil {
		return "", err
	}
	return "layer_" + layer, nil
}

func queryErr(op, layer string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrQueryFailed, op, layer, err)
}

// EnsureTable creates the layer table when missing.
func (s *SQLStore) EnsureTable(ctx context.Context, layer string) error {
	table, err := Table(layer)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	geometry TEXT,
	usable_geometry %s,
	area_m2 DOUBLE PRECISION,
	area_ha DOUBLE PRECISION,
	attributes TEXT NOT NULL DEFAULT '{}'
)`, table, s.dialect.geometryType(s.srid))
	if _, err := s.q.ExecContext(ctx, ddl); err != nil {
		return queryErr("create", layer, err)
	}
	if s.dialect.spatialIndex != nil {
		if _, err := s.q.ExecContext(ctx, s.dialect.spatialIndex(table)); err != nil {
			return queryErr("index", layer, err)
		}
	}
	return nil
}

// Insert stores a raw record. Its usable geometry stays NULL until the
// preparation job fills it.
func (s *SQLStore) Insert(ctx context.Context, layer string, rec Record) error {
	table, err := Table(layer)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if rec.Attrs == nil {
		attrs = []byte("{}")
	}
	q := fmt.Sprintf("INSERT INTO %s (id, geometry, attributes) VALUES ($1, $2, $3)", table)
	if _, err := s.q.ExecContext(ctx, q, rec.ID, rec.WKT, string(attrs)); err != nil {
		return queryErr("insert", layer, err)
	}
	return nil
}

// Import replaces the rows of layer with recs. The usable geometries are
// left for the preparation job.
func (s *SQLStore) Import(ctx context.Context, layer string, recs []Record) (int, error) {
	if err := s.EnsureTable(ctx, layer); err != nil {
		return 0, err
	}
	table, _ := Table(layer)
	if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return 0, queryErr("truncate", layer, err)
	}
	for i, rec := range recs {
		if err := s.Insert(ctx, layer, rec); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}

// Pending returns id and raw WKT of records without a usable geometry.
func (s *SQLStore) Pending(ctx context.Context, layer string) ([]Record, error) {
	table, err := Table(layer)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT id, COALESCE(geometry, '') FROM %s WHERE usable_geometry IS NULL ORDER BY id", table)
	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return nil, queryErr("pending", layer, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.WKT); err != nil {
			return nil, queryErr("pending", layer, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("pending", layer, err)
	}
	return out, nil
}

// SaveUsable writes the normalized geometry and area of one record.
func (s *SQLStore) SaveUsable(ctx context.Context, layer, id, usableWKT string, areaM2 float64) error {
	table, err := Table(layer)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET usable_geometry = %s, area_m2 = $3, area_ha = $4 WHERE id = $1",
		table, s.dialect.fromText("$2", s.srid))
	if _, err := s.q.ExecContext(ctx, q, id, usableWKT, areaM2, areaM2/10000); err != nil {
		return queryErr("save", layer, err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context, layer string) (int, error) {
	table, err := Table(layer)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, queryErr("count", layer, err)
	}
	return n, nil
}

const recordColumns = "id, COALESCE(geometry, ''), COALESCE(ST_AsText(usable_geometry), ''), COALESCE(area_m2, 0), COALESCE(attributes, '{}')"

func (s *SQLStore) Candidates(ctx context.Context, layer string, bounds *geos.Box2D) ([]Record, error) {
	table, err := Table(layer)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s", recordColumns, table)
	var args []any
	if bounds != nil {
		q += " WHERE usable_geometry IS NULL OR " +
			fmt.Sprintf(s.dialect.bboxOverlap, "usable_geometry", s.dialect.envelope(s.srid))
		args = []any{bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY}
	}
	q += " ORDER BY id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, queryErr("candidates", layer, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, queryErr("candidates", layer, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("candidates", layer, err)
	}
	return out, nil
}

func (s *SQLStore) Record(ctx context.Context, layer, id string) (Record, error) {
	table, err := Table(layer)
	if err != nil {
		return Record{}, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE lower(trim(id)) = $1 LIMIT 1", recordColumns, table)
	r, err := scanRecord(s.q.QueryRowContext(ctx, q, normalizeID(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, layer, id)
	}
	if err != nil {
		return Record{}, queryErr("record", layer, err)
	}
	return r, nil
}

// Intersect computes intersections server-side for every prepared record
// that intersects the target. Records without a usable geometry are not
// visited; the per-record path covers them.
func (s *SQLStore) Intersect(ctx context.Context, layer, targetWKT string) ([]Hit, error) {
	table, err := Table(layer)
	if err != nil {
		return nil, err
	}
	target := s.dialect.fromText("$1", s.srid)
	q := fmt.Sprintf(`WITH t AS (SELECT %s AS g)
SELECT %s, ST_AsText(ST_Intersection(l.usable_geometry, t.g))
FROM %s l, t
WHERE l.usable_geometry IS NOT NULL
	AND %s
	AND ST_Intersects(l.usable_geometry, t.g)
ORDER BY l.id`,
		target,
		recordColumns,
		table,
		fmt.Sprintf(s.dialect.bboxOverlap, "l.usable_geometry", "t.g"))

	rows, err := s.q.QueryContext(ctx, q, targetWKT)
	if err != nil {
		return nil, queryErr("intersect", layer, err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var (
			h     Hit
			attrs string
		)
		if err := rows.Scan(&h.Record.ID, &h.Record.WKT, &h.Record.UsableWKT, &h.Record.AreaM2, &attrs, &h.IntersectionWKT); err != nil {
			return nil, queryErr("intersect", layer, err)
		}
		h.Record.Attrs = decodeAttrs(attrs)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("intersect", layer, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r     Record
		attrs string
	)
	if err := sc.Scan(&r.ID, &r.WKT, &r.UsableWKT, &r.AreaM2, &attrs); err != nil {
		return Record{}, err
	}
	r.Attrs = decodeAttrs(attrs)
	return r, nil
}

func decodeAttrs(s string) Attrs {
	a := Attrs{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &a)
	}
	return a
}
