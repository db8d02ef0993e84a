package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roadgraph/internal/model"
)

const (
	NodesShapefile = "nodes.shp"
	EdgesShapefile = "edges.shp"
)

// dBase field names are limited to 10 characters.
var edgeFields = []shp.Field{
	shp.NumberField("id", 18),
	shp.NumberField("source", 18),
	shp.NumberField("target", 18),
	shp.FloatField("length", 18, 3),
	shp.NumberField("foot", 2),
	shp.NumberField("car_fwd", 2),
	shp.NumberField("car_bwd", 2),
	shp.NumberField("bike_fwd", 2),
	shp.NumberField("bike_bwd", 2),
}

var nodeFields = []shp.Field{
	shp.NumberField("id", 18),
	shp.NumberField("uses", 6),
}

// ShapefileResult reports what WriteShapefiles produced.
type ShapefileResult struct {
	Paths        []string
	SkippedEdges int
}

// WriteShapefiles writes nodes.shp (points) and edges.shp (polylines) with
// their .shx/.dbf companions into dir. Edges with fewer than two points
// cannot be represented as polylines and are skipped.
func WriteShapefiles[T model.Float](dir string, nodes []model.Node[T], edges []model.Edge[T]) (*ShapefileResult, error) {
	nodesPath := filepath.Join(dir, NodesShapefile)
	if err := writeShapefile(nodesPath, shp.POINT, nodeFields, func(w *shp.Writer) error {
		return writeNodeShapes(w, nodes)
	}); err != nil {
		return nil, err
	}

	skipped := 0
	edgesPath := filepath.Join(dir, EdgesShapefile)
	if err := writeShapefile(edgesPath, shp.POLYLINE, edgeFields, func(w *shp.Writer) error {
		var err error
		skipped, err = writeEdgeShapes(w, edges)
		return err
	}); err != nil {
		return nil, err
	}
	if skipped > 0 {
		zap.L().Warn("export: skipped degenerate edges in shapefile", zap.Int("skipped", skipped))
	}

	return &ShapefileResult{Paths: []string{nodesPath, edgesPath}, SkippedEdges: skipped}, nil
}

// writeShapefile creates path with the given fields, runs write and closes
// the writer. go-shp names the attribute table "<base>dbf", so it is moved
// to "<base>.dbf" once the headers are written.
func writeShapefile(path string, t shp.ShapeType, fields []shp.Field, write func(*shp.Writer) error) error {
	w, err := shp.Create(path, t)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}

	err = w.SetFields(fields)
	if err != nil {
		err = eris.Wrapf(err, "export: set fields for %s", path)
	} else {
		err = write(w)
	}
	w.Close()

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if rerr := os.Rename(base+"dbf", base+".dbf"); rerr != nil && err == nil {
		err = eris.Wrapf(rerr, "export: rename attribute table for %s", path)
	}
	return err
}

func writeNodeShapes[T model.Float](w *shp.Writer, nodes []model.Node[T]) error {
	for _, n := range nodes {
		row := int(w.Write(&shp.Point{X: float64(n.Coord.Lon), Y: float64(n.Coord.Lat)}))
		if err := writeAttributes(w, row, int(n.ID), int(n.Uses)); err != nil {
			return eris.Wrapf(err, "export: node %d attributes", n.ID)
		}
	}
	return nil
}

func writeEdgeShapes[T model.Float](w *shp.Writer, edges []model.Edge[T]) (int, error) {
	skipped := 0
	for _, e := range edges {
		if len(e.Geometry) < 2 {
			skipped++
			continue
		}
		points := make([]shp.Point, len(e.Geometry))
		for i, c := range e.Geometry {
			points[i] = shp.Point{X: float64(c.Lon), Y: float64(c.Lat)}
		}
		row := int(w.Write(shp.NewPolyLine([][]shp.Point{points})))

		p := e.Properties
		if err := writeAttributes(w, row,
			int(e.ID), int(e.Source), int(e.Target), float64(e.Length()),
			int(p.Foot), int(p.CarForward), int(p.CarBackward), int(p.BikeForward), int(p.BikeBackward),
		); err != nil {
			return skipped, eris.Wrapf(err, "export: edge %d attributes", e.ID)
		}
	}
	return skipped, nil
}

func writeAttributes(w *shp.Writer, row int, values ...any) error {
	for field, v := range values {
		if err := w.WriteAttribute(row, field, v); err != nil {
			return err
		}
	}
	return nil
}
