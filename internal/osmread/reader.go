// Package osmread extracts a routable road graph from an OSM extract. Ways
// are split into edges at every node shared with another way, and only those
// shared nodes become graph vertices.
package osmread

import (
	"context"
	"io"
	"math"
	"os"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roadgraph/internal/categorize"
	"github.com/sells-group/roadgraph/internal/model"
)

// Options controls extraction.
type Options struct {
	Format Format
	// Workers is the number of PBF decoding goroutines; zero means GOMAXPROCS.
	Workers int
	// KeepAll emits every referenced node, not only graph vertices.
	KeepAll bool
}

// Graph is the extracted road graph.
type Graph[T model.Float] struct {
	Nodes []model.Node[T]
	Edges []model.Edge[T]
}

// Stats summarizes a graph.
type Stats struct {
	Nodes  int       `json:"nodes" yaml:"nodes"`
	Edges  int       `json:"edges" yaml:"edges"`
	Length float64   `json:"length_m" yaml:"length_m"`
	Bound  orb.Bound `json:"-" yaml:"-"`
}

// Stats computes node and edge counts, total edge length and the bounding
// box of all edge geometries.
func (g *Graph[T]) Stats() Stats {
	s := Stats{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	first := true
	for _, e := range g.Edges {
		s.Length += float64(e.Length())
		if len(e.Geometry) == 0 {
			continue
		}
		if first {
			s.Bound = e.Bound()
			first = false
		} else {
			s.Bound = s.Bound.Union(e.Bound())
		}
	}
	return s
}

// OpenFunc opens a fresh reader over the extract. Extraction reads the input
// twice, so it is called once per pass.
type OpenFunc func() (io.ReadCloser, error)

// Read extracts the road graph from the OSM file at path.
func Read[T model.Float](ctx context.Context, path string, opts Options) (*Graph[T], error) {
	format, err := DetectFormat(path, opts.Format)
	if err != nil {
		return nil, err
	}
	opts.Format = format
	open := func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "osmread: open %s", path)
		}
		return f, nil
	}
	return ReadFrom[T](ctx, open, opts)
}

// ReadFrom extracts the road graph from the readers returned by open.
// opts.Format must be FormatPBF or FormatXML.
func ReadFrom[T model.Float](ctx context.Context, open OpenFunc, opts Options) (*Graph[T], error) {
	if opts.Format != FormatPBF && opts.Format != FormatXML {
		return nil, eris.Errorf("osmread: format must be %q or %q, got %q", FormatPBF, FormatXML, opts.Format)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scan := scannerFor(opts.Format, workers)
	log := zap.L().With(zap.String("component", "osmread"), zap.String("format", string(opts.Format)))

	b := newBuilder()
	if err := runPass(ctx, open, scan, visitor{way: b.addWay}); err != nil {
		return nil, eris.Wrap(err, "osmread: ways pass")
	}
	log.Debug("ways pass complete", zap.Int("ways", len(b.ways)), zap.Int("referenced_nodes", len(b.needed)))

	if err := runPass(ctx, open, scan, visitor{node: b.addNode}); err != nil {
		return nil, eris.Wrap(err, "osmread: nodes pass")
	}
	log.Debug("nodes pass complete", zap.Int("nodes", len(b.coords)))

	g := buildGraph[T](b, opts.KeepAll)
	log.Info("road graph extracted",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("dropped_ways", b.dropped),
	)
	return g, nil
}

func runPass(ctx context.Context, open OpenFunc, scan scanFunc, v visitor) error {
	r, err := open()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return scan(ctx, r, v)
}

type way struct {
	id    int64
	refs  []int64
	props categorize.EdgeProperties
}

type builder struct {
	ways    []way
	needed  map[int64]struct{}
	coords  map[int64][2]float64
	uses    map[int64]int16
	dropped int
}

func newBuilder() *builder {
	return &builder{
		needed: make(map[int64]struct{}),
		coords: make(map[int64][2]float64),
		uses:   make(map[int64]int16),
	}
}

func (b *builder) addWay(w rawWay) {
	if len(w.Refs) < 2 {
		return
	}
	props := categorize.FromTags(w.Tags)
	if !props.Accessible() {
		return
	}
	refs := make([]int64, len(w.Refs))
	copy(refs, w.Refs)
	for _, ref := range refs {
		b.needed[ref] = struct{}{}
	}
	b.ways = append(b.ways, way{id: w.ID, refs: refs, props: props})
}

func (b *builder) addNode(n rawNode) {
	if _, ok := b.needed[n.ID]; ok {
		b.coords[n.ID] = [2]float64{n.Lon, n.Lat}
	}
}

func (b *builder) use(id int64, n int16) {
	u := b.uses[id]
	if u > math.MaxInt16-n {
		u = math.MaxInt16
	} else {
		u += n
	}
	b.uses[id] = u
}

// resolve drops references to nodes absent from the extract, then drops ways
// left with fewer than two references, and counts node uses.
func (b *builder) resolve() {
	kept := b.ways[:0]
	for _, w := range b.ways {
		refs := w.refs[:0]
		for _, ref := range w.refs {
			if _, ok := b.coords[ref]; ok {
				refs = append(refs, ref)
			}
		}
		if len(refs) < 2 {
			b.dropped++
			continue
		}
		w.refs = refs
		kept = append(kept, w)
	}
	b.ways = kept

	for _, w := range b.ways {
		last := len(w.refs) - 1
		for i, ref := range w.refs {
			if i == 0 || i == last {
				b.use(ref, 2)
			} else {
				b.use(ref, 1)
			}
		}
	}
}

func buildGraph[T model.Float](b *builder, keepAll bool) *Graph[T] {
	b.resolve()

	coord := func(id int64) model.Coord[T] {
		c := b.coords[id]
		return model.Coord[T]{Lon: T(c[0]), Lat: T(c[1])}
	}

	g := &Graph[T]{}
	var nextID int64 = 1
	for _, w := range b.ways {
		source := w.refs[0]
		geometry := []model.Coord[T]{coord(source)}
		for _, ref := range w.refs[1:] {
			geometry = append(geometry, coord(ref))
			if b.uses[ref] > 1 {
				g.Edges = append(g.Edges, model.Edge[T]{
					ID:         nextID,
					Source:     source,
					Target:     ref,
					Geometry:   geometry,
					Properties: w.props,
				})
				nextID++
				source = ref
				geometry = []model.Coord[T]{coord(ref)}
			}
		}
	}

	for id, uses := range b.uses {
		if uses > 1 || keepAll {
			g.Nodes = append(g.Nodes, model.Node[T]{ID: id, Coord: coord(id), Uses: uses})
		}
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	return g
}
