package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/roadgraph/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Edge geometry is kept
// as a WKB blob next to its bounding box columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS nodes (
	id   INTEGER PRIMARY KEY,
	lon  REAL NOT NULL,
	lat  REAL NOT NULL,
	uses INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS edges (
	id            INTEGER PRIMARY KEY,
	source        INTEGER NOT NULL,
	target        INTEGER NOT NULL,
	length        REAL NOT NULL,
	foot          INTEGER NOT NULL,
	car_forward   INTEGER NOT NULL,
	car_backward  INTEGER NOT NULL,
	bike_forward  INTEGER NOT NULL,
	bike_backward INTEGER NOT NULL,
	wkt           TEXT NOT NULL,
	geom          BLOB,
	min_lon       REAL,
	min_lat       REAL,
	max_lon       REAL,
	max_lat       REAL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	nodes      INTEGER NOT NULL,
	edges      INTEGER NOT NULL,
	length_m   REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_edges_bbox ON edges(min_lon, max_lon, min_lat, max_lat);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WriteNodes(ctx context.Context, nodes []model.Node[float64]) error {
	return s.inTx(ctx, "nodes",
		`INSERT OR REPLACE INTO nodes (id, lon, lat, uses) VALUES (?, ?, ?, ?)`,
		len(nodes), func(stmt *sql.Stmt, i int) error {
			n := nodes[i]
			_, err := stmt.ExecContext(ctx, n.ID, n.Coord.Lon, n.Coord.Lat, n.Uses)
			return err
		})
}

func (s *SQLiteStore) WriteEdges(ctx context.Context, edges []model.Edge[float64]) error {
	return s.inTx(ctx, "edges",
		`INSERT OR REPLACE INTO edges (id, source, target, length, foot, car_forward, car_backward, bike_forward, bike_backward, wkt, geom, min_lon, min_lat, max_lon, max_lat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(edges), func(stmt *sql.Stmt, i int) error {
			e := edges[i]
			var blob []byte
			if g := edgeGeometry(e); g != nil {
				var err error
				if blob, err = wkb.Marshal(g, wkb.NDR); err != nil {
					return eris.Wrapf(err, "encode edge %d", e.ID)
				}
			}
			args := []any{e.ID, e.Source, e.Target, e.Length()}
			args = append(args, accessValues(e.Properties)...)
			args = append(args, e.AsWKT(), blob)
			args = append(args, boundValues(e)...)
			_, err := stmt.ExecContext(ctx, args...)
			return err
		})
}

// boundValues returns the bbox columns of e. An edge without geometry gets
// NULLs so no bbox query matches it.
func boundValues(e model.Edge[float64]) []any {
	if len(e.Geometry) == 0 {
		return []any{nil, nil, nil, nil}
	}
	b := e.Bound()
	return []any{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// inTx runs exec for each of n rows against one prepared statement inside a
// single transaction.
func (s *SQLiteStore) inTx(ctx context.Context, table, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s tx", table)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s insert", table)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", table, i)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, source, nodes, edges, length_m, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Nodes, run.Edges, run.LengthM, createdAt,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, nodes, edges, length_m, created_at FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Nodes, &r.Edges, &r.LengthM, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) GetNode(ctx context.Context, id int64) (*model.Node[float64], error) {
	var n model.Node[float64]
	err := s.db.QueryRowContext(ctx, `SELECT id, lon, lat, uses FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &n.Coord.Lon, &n.Coord.Lat, &n.Uses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: node %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get node %d", id)
	}
	return &n, nil
}

const sqliteEdgeColumns = `id, source, target, foot, car_forward, car_backward, bike_forward, bike_backward, geom`

func (s *SQLiteStore) GetEdge(ctx context.Context, id int64) (*model.Edge[float64], error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteEdgeColumns+` FROM edges WHERE id = ?`, id)
	e, err := scanEdge(row, decodeWKB)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: edge %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get edge %d", id)
	}
	return e, nil
}

func (s *SQLiteStore) EdgesInBound(ctx context.Context, b orb.Bound, limit int) ([]model.Edge[float64], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEdgeColumns+` FROM edges
		 WHERE max_lon >= ? AND min_lon <= ? AND max_lat >= ? AND min_lat <= ?
		 ORDER BY id LIMIT ?`,
		b.Min.Lon(), b.Max.Lon(), b.Min.Lat(), b.Max.Lat(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: edges in bound")
	}
	defer rows.Close()

	var edges []model.Edge[float64]
	for rows.Next() {
		e, err := scanEdge(rows, decodeWKB)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge")
		}
		edges = append(edges, *e)
	}
	return edges, eris.Wrap(rows.Err(), "sqlite: iterate edges")
}

func decodeWKB(data []byte) (geom.T, error) {
	return wkb.Unmarshal(data)
}
