package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference of every geometry produced by this package.
const SRID = 4326

// Geom converts the edge geometry to a go-geom LineString tagged with SRID
// 4326. It returns nil when the geometry has fewer than two points, which is
// not a valid linestring for the binary encoders.
func (e Edge[T]) Geom() *geom.LineString {
	if len(e.Geometry) < 2 {
		return nil
	}
	flat := make([]float64, 0, len(e.Geometry)*2)
	for _, c := range e.Geometry {
		flat = append(flat, float64(c.Lon), float64(c.Lat))
	}
	return geom.NewLineStringFlat(geom.XY, flat).SetSRID(SRID)
}

// Point converts the node coordinate to a go-geom Point tagged with SRID 4326.
func (n Node[T]) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{float64(n.Coord.Lon), float64(n.Coord.Lat)}).SetSRID(SRID)
}

// OrbPoint converts the coordinate to an orb point (lon, lat).
func (c Coord[T]) OrbPoint() orb.Point {
	return orb.Point{float64(c.Lon), float64(c.Lat)}
}

// LineString converts the edge geometry to an orb LineString.
func (e Edge[T]) LineString() orb.LineString {
	ls := make(orb.LineString, 0, len(e.Geometry))
	for _, c := range e.Geometry {
		ls = append(ls, c.OrbPoint())
	}
	return ls
}

// Bound returns the bounding box of the edge geometry. An empty geometry
// yields the zero bound.
func (e Edge[T]) Bound() orb.Bound {
	if len(e.Geometry) == 0 {
		return orb.Bound{}
	}
	return e.LineString().Bound()
}

// Feature renders the edge as a GeoJSON LineString feature carrying its
// identifiers, length, WKT literal and access classification.
func (e Edge[T]) Feature() *geojson.Feature {
	f := geojson.NewFeature(e.LineString())
	f.ID = e.ID
	f.Properties["id"] = e.ID
	f.Properties["source"] = e.Source
	f.Properties["target"] = e.Target
	f.Properties["length"] = float64(e.Length())
	f.Properties["wkt"] = e.AsWKT()
	f.Properties["foot"] = e.Properties.Foot.String()
	f.Properties["car_forward"] = e.Properties.CarForward.String()
	f.Properties["car_backward"] = e.Properties.CarBackward.String()
	f.Properties["bike_forward"] = e.Properties.BikeForward.String()
	f.Properties["bike_backward"] = e.Properties.BikeBackward.String()
	return f
}

// CoordsFromFlat rebuilds a coordinate sequence from XY flat coordinates as
// produced by go-geom. A trailing odd value is ignored.
func CoordsFromFlat[T Float](flat []float64) []Coord[T] {
	coords := make([]Coord[T], 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		coords = append(coords, Coord[T]{Lon: T(flat[i]), Lat: T(flat[i+1])})
	}
	return coords
}
