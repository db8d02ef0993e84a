// Package export writes an extracted road graph to files: CSV tables,
// ESRI shapefiles and a YAML manifest describing the run.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roadgraph/internal/model"
)

const (
	NodesCSV = "nodes.csv"
	EdgesCSV = "edges.csv"
)

// nodeColumns defines the ordered nodes.csv columns.
var nodeColumns = []string{"id", "lon", "lat"}

// edgeColumns defines the ordered edges.csv columns.
var edgeColumns = []string{
	"id",
	"source",
	"target",
	"length",
	"foot",
	"car_forward",
	"car_backward",
	"bike_forward",
	"bike_backward",
	"wkt",
}

// WriteCSV writes nodes.csv and edges.csv into dir and returns the paths
// written.
func WriteCSV[T model.Float](dir string, nodes []model.Node[T], edges []model.Edge[T]) ([]string, error) {
	nodesPath := filepath.Join(dir, NodesCSV)
	if err := writeTable(nodesPath, nodeColumns, len(nodes), func(i int) []string {
		return NodeRow(nodes[i])
	}); err != nil {
		return nil, eris.Wrap(err, "export: nodes csv")
	}

	edgesPath := filepath.Join(dir, EdgesCSV)
	if err := writeTable(edgesPath, edgeColumns, len(edges), func(i int) []string {
		return EdgeRow(edges[i])
	}); err != nil {
		return nil, eris.Wrap(err, "export: edges csv")
	}

	return []string{nodesPath, edgesPath}, nil
}

func writeTable(path string, header []string, n int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "write header")
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return eris.Wrapf(err, "write row %d", i)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "flush")
	}
	return f.Close()
}

// NodeRow maps a node to a nodes.csv row.
func NodeRow[T model.Float](n model.Node[T]) []string {
	return []string{
		strconv.FormatInt(n.ID, 10),
		fixed(float64(n.Coord.Lon)),
		fixed(float64(n.Coord.Lat)),
	}
}

// EdgeRow maps an edge to an edges.csv row. Access classes are written as
// their integer codes.
func EdgeRow[T model.Float](e model.Edge[T]) []string {
	p := e.Properties
	return []string{
		strconv.FormatInt(e.ID, 10),
		strconv.FormatInt(e.Source, 10),
		strconv.FormatInt(e.Target, 10),
		fixed(float64(e.Length())),
		strconv.Itoa(int(p.Foot)),
		strconv.Itoa(int(p.CarForward)),
		strconv.Itoa(int(p.CarBackward)),
		strconv.Itoa(int(p.BikeForward)),
		strconv.Itoa(int(p.BikeBackward)),
		e.AsWKT(),
	}
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}
