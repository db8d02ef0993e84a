package model

// earthRadius is the spherical Earth radius in meters used by Distance.
const earthRadius float32 = 6378100.0

// Coord is a geographic position in decimal degrees (WGS84 assumed).
type Coord[T Float] struct {
	Lon T `json:"lon"`
	Lat T `json:"lat"`
}

// String renders the coordinate as "lon lat" with seven fractional digits,
// the point form used inside a LINESTRING literal.
func (c Coord[T]) String() string {
	return formatFixed(c.Lon) + " " + formatFixed(c.Lat)
}

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula on a sphere of radius 6 378 100 m.
// Input is not validated: NaN or out-of-range degrees yield NaN.
func Distance[T Float](start, end Coord[T]) T {
	r := literal[T](earthRadius)
	one := literal[T](1.0)
	two := literal[T](2.0)

	dLon := toRadians(end.Lon - start.Lon)
	dLat := toRadians(end.Lat - start.Lat)
	lat1 := toRadians(start.Lat)
	lat2 := toRadians(end.Lat)

	sinLat := sin(dLat / two)
	sinLon := sin(dLon / two)

	// cos(lat1)*cos(lat2) is grouped so swapping start and end gives the
	// bitwise-identical result.
	a := sinLat*sinLat + sinLon*sinLon*(cos(lat1)*cos(lat2))
	c := two * atan2(sqrt(a), sqrt(one-a))

	return r * c
}
