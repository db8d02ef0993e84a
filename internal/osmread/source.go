package osmread

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
	"github.com/qedus/osmpbf"
	"github.com/rotisserie/eris"
)

// Format identifies the encoding of an OSM extract.
type Format string

const (
	FormatAuto Format = "auto"
	FormatPBF  Format = "pbf"
	FormatXML  Format = "xml"
)

// DetectFormat resolves FormatAuto from the file extension.
func DetectFormat(path string, f Format) (Format, error) {
	switch f {
	case FormatPBF, FormatXML:
		return f, nil
	case FormatAuto, "":
	default:
		return "", eris.Errorf("osmread: unsupported format %q", f)
	}

	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(name, ".osm"), strings.HasSuffix(name, ".xml"):
		return FormatXML, nil
	}
	return "", eris.Errorf("osmread: cannot detect format of %s", path)
}

type rawNode struct {
	ID  int64
	Lon float64
	Lat float64
}

type rawWay struct {
	ID   int64
	Refs []int64
	Tags map[string]string
}

// visitor receives decoded elements. A nil callback skips that element kind.
type visitor struct {
	node func(rawNode)
	way  func(rawWay)
}

type scanFunc func(ctx context.Context, r io.ReadCloser, v visitor) error

func scannerFor(f Format, workers int) scanFunc {
	if f == FormatXML {
		return scanXML
	}
	return func(ctx context.Context, r io.ReadCloser, v visitor) error {
		return scanPBF(ctx, r, workers, v)
	}
}

func scanPBF(ctx context.Context, r io.ReadCloser, workers int, v visitor) (err error) {
	decoder := osmpbf.NewDecoder(r)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(workers); err != nil {
		return eris.Wrap(err, "osmread: start pbf decoder")
	}
	defer func() {
		if err != nil {
			// The decoder goroutines only exit once their output is consumed
			// up to the first error, and osmpbf cannot be stopped. Closing the
			// input makes the read loop fail at the next blob.
			_ = r.Close()
			drainPBF(decoder)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "osmread: pbf scan")
		}
		obj, err := decoder.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "osmread: decode pbf")
		}

		switch o := obj.(type) {
		case *osmpbf.Node:
			if v.node != nil {
				v.node(rawNode{ID: o.ID, Lon: o.Lon, Lat: o.Lat})
			}
		case *osmpbf.Way:
			if v.way != nil {
				v.way(rawWay{ID: o.ID, Refs: o.NodeIDs, Tags: o.Tags})
			}
		}
	}
}

// drainPBF consumes decoded objects until the decoder reports EOF or an
// error. Decode returns io.EOF for every call after the first error.
func drainPBF(decoder *osmpbf.Decoder) int {
	n := 0
	for {
		if _, err := decoder.Decode(); err != nil {
			return n
		}
		n++
	}
}

func scanXML(ctx context.Context, r io.ReadCloser, v visitor) error {
	scanner := osmxml.New(ctx, r)
	defer func() { _ = scanner.Close() }()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			if v.node != nil {
				v.node(rawNode{ID: int64(o.ID), Lon: o.Lon, Lat: o.Lat})
			}
		case *osm.Way:
			if v.way != nil {
				refs := make([]int64, len(o.Nodes))
				for i, wn := range o.Nodes {
					refs[i] = int64(wn.ID)
				}
				v.way(rawWay{ID: int64(o.ID), Refs: refs, Tags: o.Tags.Map()})
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "osmread: xml scan")
	}
	if err := scanner.Err(); err != nil {
		return eris.Wrap(err, "osmread: decode xml")
	}
	return nil
}
