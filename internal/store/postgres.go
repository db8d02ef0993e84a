package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/roadgraph/internal/db"
	"github.com/sells-group/roadgraph/internal/model"
	"github.com/sells-group/roadgraph/internal/resilience"
)

// PostgresStore implements Store on PostGIS using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// A freshly started PostGIS container refuses connections for a while.
	pool, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig("postgres connect"), func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS nodes (
	id   BIGINT PRIMARY KEY,
	lon  DOUBLE PRECISION NOT NULL,
	lat  DOUBLE PRECISION NOT NULL,
	uses SMALLINT NOT NULL DEFAULT 0,
	geom geometry(Point, 4326) NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
	id            BIGINT PRIMARY KEY,
	source        BIGINT NOT NULL,
	target        BIGINT NOT NULL,
	length        DOUBLE PRECISION NOT NULL,
	foot          SMALLINT NOT NULL,
	car_forward   SMALLINT NOT NULL,
	car_backward  SMALLINT NOT NULL,
	bike_forward  SMALLINT NOT NULL,
	bike_backward SMALLINT NOT NULL,
	wkt           TEXT NOT NULL,
	geom          geometry(Geometry, 4326)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	nodes      INTEGER NOT NULL,
	edges      INTEGER NOT NULL,
	length_m   DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_nodes_geom ON nodes USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_edges_geom ON edges USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var nodeColumns = []string{"id", "lon", "lat", "uses", "geom"}

func (s *PostgresStore) WriteNodes(ctx context.Context, nodes []model.Node[float64]) error {
	rows := make([][]any, 0, len(nodes))
	for _, n := range nodes {
		point, err := ewkb.Marshal(n.Point(), ewkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode node %d", n.ID)
		}
		rows = append(rows, []any{n.ID, n.Coord.Lon, n.Coord.Lat, n.Uses, point})
	}
	return s.load(ctx, db.Table{Name: "nodes", Columns: nodeColumns}, rows)
}

func edgeColumns() []string {
	cols := []string{"id", "source", "target", "length"}
	cols = append(cols, accessColumns...)
	return append(cols, "wkt", "geom")
}

func (s *PostgresStore) WriteEdges(ctx context.Context, edges []model.Edge[float64]) error {
	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		var shape []byte
		if g := edgeGeometry(e); g != nil {
			var err error
			if shape, err = ewkb.Marshal(g, ewkb.NDR); err != nil {
				return eris.Wrapf(err, "postgres: encode edge %d", e.ID)
			}
		}
		row := []any{e.ID, e.Source, e.Target, e.Length()}
		row = append(row, accessValues(e.Properties)...)
		rows = append(rows, append(row, e.AsWKT(), shape))
	}
	return s.load(ctx, db.Table{Name: "edges", Columns: edgeColumns()}, rows)
}

func (s *PostgresStore) load(ctx context.Context, t db.Table, rows [][]any) error {
	res, err := db.Load(ctx, s.pool, t, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: write %s", t.Name)
	}
	zap.L().Debug("postgres: table loaded",
		zap.String("table", t.Name),
		zap.Int64("rows", res.Rows),
		zap.Bool("merged", res.Merged),
	)
	return nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, nodes, edges, length_m, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, nodes = EXCLUDED.nodes, edges = EXCLUDED.edges, length_m = EXCLUDED.length_m`,
		run.ID, run.Source, run.Nodes, run.Edges, run.LengthM, createdAt,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, nodes, edges, length_m, created_at FROM runs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Nodes, &r.Edges, &r.LengthM, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) GetNode(ctx context.Context, id int64) (*model.Node[float64], error) {
	var n model.Node[float64]
	err := s.pool.QueryRow(ctx, `SELECT id, lon, lat, uses FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.Coord.Lon, &n.Coord.Lat, &n.Uses)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: node %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get node %d", id)
	}
	return &n, nil
}

var postgresEdgeColumns = fmt.Sprintf("id, source, target, %s, ST_AsEWKB(geom)", strings.Join(accessColumns, ", "))

func (s *PostgresStore) GetEdge(ctx context.Context, id int64) (*model.Edge[float64], error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresEdgeColumns+` FROM edges WHERE id = $1`, id)
	e, err := scanEdge(row, decodeEWKB)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: edge %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get edge %d", id)
	}
	return e, nil
}

func (s *PostgresStore) EdgesInBound(ctx context.Context, b orb.Bound, limit int) ([]model.Edge[float64], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresEdgeColumns+` FROM edges
		 WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		 ORDER BY id LIMIT $5`,
		b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: edges in bound")
	}
	defer rows.Close()

	var edges []model.Edge[float64]
	for rows.Next() {
		e, err := scanEdge(rows, decodeEWKB)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge")
		}
		edges = append(edges, *e)
	}
	return edges, eris.Wrap(rows.Err(), "postgres: iterate edges")
}

func decodeEWKB(data []byte) (geom.T, error) {
	return ewkb.Unmarshal(data)
}
