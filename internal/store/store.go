// Package store persists extracted road graphs and serves lookups over them.
package store

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/roadgraph/internal/categorize"
	"github.com/sells-group/roadgraph/internal/config"
	"github.com/sells-group/roadgraph/internal/model"
)

// ErrNotFound is returned when a node or edge id has no row.
var ErrNotFound = eris.New("store: not found")

// Run records one extraction loaded into the store.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	LengthM   float64   `json:"length_m"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence interface for road graphs.
type Store interface {
	WriteNodes(ctx context.Context, nodes []model.Node[float64]) error
	WriteEdges(ctx context.Context, edges []model.Edge[float64]) error
	RecordRun(ctx context.Context, run Run) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	GetNode(ctx context.Context, id int64) (*model.Node[float64], error)
	GetEdge(ctx context.Context, id int64) (*model.Edge[float64], error)
	// EdgesInBound returns up to limit edges whose bounding box intersects b,
	// ordered by id.
	EdgesInBound(ctx context.Context, b orb.Bound, limit int) ([]model.Edge[float64], error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver ("sqlite" or "postgres").
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires store.database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// accessColumns are the per-edge classification columns shared by both
// backends, in storage order.
var accessColumns = []string{"foot", "car_forward", "car_backward", "bike_forward", "bike_backward"}

func accessValues(p categorize.EdgeProperties) []any {
	return []any{int16(p.Foot), int16(p.CarForward), int16(p.CarBackward), int16(p.BikeForward), int16(p.BikeBackward)}
}

func accessFrom(foot, carFwd, carBwd, bikeFwd, bikeBwd int16) categorize.EdgeProperties {
	return categorize.EdgeProperties{
		Foot:         categorize.FootAccess(foot),
		CarForward:   categorize.CarAccess(carFwd),
		CarBackward:  categorize.CarAccess(carBwd),
		BikeForward:  categorize.BikeAccess(bikeFwd),
		BikeBackward: categorize.BikeAccess(bikeBwd),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

// edgeGeometry is the stored shape of an edge: a LineString, a Point for a
// single-vertex edge, or nil when the edge has no geometry.
func edgeGeometry(e model.Edge[float64]) geom.T {
	switch len(e.Geometry) {
	case 0:
		return nil
	case 1:
		c := e.Geometry[0]
		return geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}).SetSRID(model.SRID)
	default:
		return e.Geom()
	}
}

// scanEdge reads the columns id, source, target, the five access columns and
// the binary geometry, decoding the geometry with decode.
func scanEdge(row scannable, decode func([]byte) (geom.T, error)) (*model.Edge[float64], error) {
	var e model.Edge[float64]
	var foot, carFwd, carBwd, bFwd, bBwd int16
	var blob []byte
	if err := row.Scan(&e.ID, &e.Source, &e.Target, &foot, &carFwd, &carBwd, &bFwd, &bBwd, &blob); err != nil {
		return nil, err
	}
	e.Properties = accessFrom(foot, carFwd, carBwd, bFwd, bBwd)
	if len(blob) > 0 {
		g, err := decode(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "decode edge %d geometry", e.ID)
		}
		e.Geometry = model.CoordsFromFlat[float64](g.FlatCoords())
	}
	return &e, nil
}
