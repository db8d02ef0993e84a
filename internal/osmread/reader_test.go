package osmread

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/qedus/osmpbf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/roadgraph/internal/categorize"
	"github.com/sells-group/roadgraph/internal/model"
)

// Ways 10, 11 and 12 are routable; 13 is a building and 14 references a node
// missing from the extract. Node 4 is only an interior point of way 11.
const testExtract = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="0.000" lon="0.000"/>
  <node id="2" lat="0.000" lon="0.001"/>
  <node id="3" lat="0.000" lon="0.002"/>
  <node id="4" lat="0.001" lon="0.003"/>
  <node id="5" lat="0.000" lon="0.004"/>
  <node id="6" lat="0.001" lon="0.001"/>
  <node id="7" lat="5.000" lon="5.000"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="residential"/>
  </way>
  <way id="11">
    <nd ref="3"/><nd ref="4"/><nd ref="5"/>
    <tag k="highway" v="primary"/>
    <tag k="oneway" v="yes"/>
  </way>
  <way id="12">
    <nd ref="2"/><nd ref="6"/>
    <tag k="highway" v="footway"/>
  </way>
  <way id="13">
    <nd ref="4"/><nd ref="6"/><nd ref="7"/>
    <tag k="building" v="yes"/>
  </way>
  <way id="14">
    <nd ref="99"/><nd ref="5"/>
    <tag k="highway" v="residential"/>
  </way>
</osm>`

func openString(s string) OpenFunc {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func readTest(t *testing.T, opts Options) *Graph[float64] {
	t.Helper()
	opts.Format = FormatXML
	g, err := ReadFrom[float64](context.Background(), openString(testExtract), opts)
	require.NoError(t, err)
	return g
}

func nodeIDs[T model.Float](nodes []model.Node[T]) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestReadFrom_SplitsWaysAtSharedNodes(t *testing.T) {
	g := readTest(t, Options{})

	require.Len(t, g.Edges, 4)

	type endpoints struct{ id, source, target int64 }
	var got []endpoints
	for _, e := range g.Edges {
		got = append(got, endpoints{e.ID, e.Source, e.Target})
	}
	assert.Equal(t, []endpoints{
		{1, 1, 2},
		{2, 2, 3},
		{3, 3, 5},
		{4, 2, 6},
	}, got)

	// Interior node 4 stays in the geometry of edge 3.
	assert.Equal(t, []model.Coord[float64]{
		{Lon: 0.002, Lat: 0},
		{Lon: 0.003, Lat: 0.001},
		{Lon: 0.004, Lat: 0},
	}, g.Edges[2].Geometry)
}

func TestReadFrom_GeometryIncludesEndpoints(t *testing.T) {
	g := readTest(t, Options{})
	for _, e := range g.Edges {
		require.GreaterOrEqual(t, len(e.Geometry), 2)
	}
	assert.Equal(t, "LINESTRING(0.0000000 0.0000000, 0.0010000 0.0000000)", g.Edges[0].AsWKT())
}

func TestReadFrom_NodesAreSharedVertices(t *testing.T) {
	g := readTest(t, Options{})

	assert.Equal(t, []int64{1, 2, 3, 5, 6}, nodeIDs(g.Nodes))

	uses := map[int64]int16{}
	for _, n := range g.Nodes {
		uses[n.ID] = n.Uses
	}
	assert.Equal(t, map[int64]int16{1: 2, 2: 3, 3: 4, 5: 2, 6: 2}, uses)
	assert.Equal(t, model.Coord[float64]{Lon: 0.001, Lat: 0.001}, g.Nodes[4].Coord)
}

func TestReadFrom_KeepAll(t *testing.T) {
	g := readTest(t, Options{KeepAll: true})
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, nodeIDs(g.Nodes))
	assert.Equal(t, int16(1), g.Nodes[3].Uses)
}

func TestReadFrom_Classification(t *testing.T) {
	g := readTest(t, Options{})

	oneway := g.Edges[2].Properties
	assert.Equal(t, categorize.CarPrimary, oneway.CarForward)
	assert.Equal(t, categorize.CarForbidden, oneway.CarBackward)

	footway := g.Edges[3].Properties
	assert.Equal(t, categorize.FootAllowed, footway.Foot)
	assert.Equal(t, categorize.CarForbidden, footway.CarForward)
	assert.Equal(t, categorize.BikeTrack, footway.BikeForward)
}

func TestReadFrom_Float32(t *testing.T) {
	g, err := ReadFrom[float32](context.Background(), openString(testExtract), Options{Format: FormatXML})
	require.NoError(t, err)
	require.Len(t, g.Edges, 4)
	assert.InDelta(t, 111.3, float64(g.Edges[0].Length()), 0.1)
}

func TestReadFrom_InvalidFormat(t *testing.T) {
	_, err := ReadFrom[float64](context.Background(), openString(testExtract), Options{Format: FormatAuto})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")
}

func TestReadFrom_OpenError(t *testing.T) {
	open := func() (io.ReadCloser, error) { return nil, os.ErrNotExist }
	_, err := ReadFrom[float64](context.Background(), open, Options{Format: FormatXML})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ways pass")
}

func TestReadFrom_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadFrom[float64](ctx, openString(testExtract), Options{Format: FormatXML})
	require.Error(t, err)
}

func TestReadFrom_InvalidPBF(t *testing.T) {
	_, err := ReadFrom[float64](context.Background(), openString("definitely not a pbf file"), Options{Format: FormatPBF, Workers: 1})
	require.Error(t, err)
}

// testdata/extract.osm.pbf holds the same elements as testExtract, with dense
// nodes and zlib-compressed blobs.
var pbfExtract = filepath.Join("testdata", "extract.osm.pbf")

func openPBF() (io.ReadCloser, error) { return os.Open(pbfExtract) }

func TestReadFrom_PBFMatchesXML(t *testing.T) {
	want := readTest(t, Options{})

	for _, workers := range []int{1, 4} {
		got, err := ReadFrom[float64](context.Background(), openPBF, Options{Format: FormatPBF, Workers: workers})
		require.NoError(t, err, "workers=%d", workers)

		assert.Equal(t, nodeIDs(want.Nodes), nodeIDs(got.Nodes), "workers=%d", workers)
		for i, n := range got.Nodes {
			assert.Equal(t, want.Nodes[i].Uses, n.Uses, "node %d", n.ID)
			assert.InDelta(t, want.Nodes[i].Coord.Lon, n.Coord.Lon, 1e-9, "node %d", n.ID)
			assert.InDelta(t, want.Nodes[i].Coord.Lat, n.Coord.Lat, 1e-9, "node %d", n.ID)
		}

		require.Len(t, got.Edges, len(want.Edges), "workers=%d", workers)
		for i, e := range got.Edges {
			w := want.Edges[i]
			assert.Equal(t, w.ID, e.ID)
			assert.Equal(t, w.Source, e.Source)
			assert.Equal(t, w.Target, e.Target)
			assert.Equal(t, w.Properties, e.Properties, "edge %d", e.ID)
			assert.Len(t, e.Geometry, len(w.Geometry), "edge %d", e.ID)
			assert.InDelta(t, w.Length(), e.Length(), 1e-6, "edge %d", e.ID)
		}
	}
}

func TestRead_PBFFileDetected(t *testing.T) {
	g, err := Read[float64](context.Background(), pbfExtract, Options{Workers: 2})
	require.NoError(t, err)
	assert.Len(t, g.Edges, 4)
	assert.Len(t, g.Nodes, 5)
}

func TestDrainPBF(t *testing.T) {
	f, err := openPBF()
	require.NoError(t, err)
	defer f.Close()

	decoder := osmpbf.NewDecoder(f)
	require.NoError(t, decoder.Start(2))

	// Seven nodes and five ways.
	assert.Equal(t, 12, drainPBF(decoder))
	_, err = decoder.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestScanPBF_CanceledReleasesDecoder(t *testing.T) {
	before := runtime.NumGoroutine()

	f, err := openPBF()
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var nodes int
	err = scanPBF(ctx, f, 4, visitor{node: func(rawNode) {
		nodes++
		cancel()
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, nodes)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRead_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.osm")
	require.NoError(t, os.WriteFile(path, []byte(testExtract), 0o644))

	g, err := Read[float64](context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, g.Edges, 4)
	assert.Len(t, g.Nodes, 5)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read[float64](context.Background(), filepath.Join(t.TempDir(), "missing.osm.pbf"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		want   Format
		err    bool
	}{
		{"monaco-latest.osm.pbf", FormatAuto, FormatPBF, false},
		{"/data/MAP.PBF", "", FormatPBF, false},
		{"small.osm", FormatAuto, FormatXML, false},
		{"export.xml", FormatAuto, FormatXML, false},
		{"anything.bin", FormatXML, FormatXML, false},
		{"anything.bin", FormatAuto, "", true},
		{"x.osm", Format("o5m"), "", true},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path, tt.format)
		if tt.err {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestGraph_Stats(t *testing.T) {
	g := readTest(t, Options{})
	s := g.Stats()

	assert.Equal(t, 5, s.Nodes)
	assert.Equal(t, 4, s.Edges)

	var want float64
	for _, e := range g.Edges {
		want += e.Length()
	}
	assert.InDelta(t, want, s.Length, 1e-9)
	assert.Equal(t, 0.0, s.Bound.Min.Lon())
	assert.Equal(t, 0.004, s.Bound.Max.Lon())
	assert.Equal(t, 0.001, s.Bound.Max.Lat())
}

func TestGraph_StatsEmpty(t *testing.T) {
	g := &Graph[float64]{}
	s := g.Stats()
	assert.Equal(t, Stats{}, s)
}
