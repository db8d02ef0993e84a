// Package model defines the road-network graph primitives (coordinates, nodes
// and edges) and the geodesic computations derived from them.
package model

import (
	"fmt"
	"math"
	"strconv"
)

// Float is the numeric bound for coordinate values. The same formulas run at
// 32-bit or 64-bit precision depending on the instantiation.
type Float interface {
	~float32 | ~float64
}

// literal converts one of the package's fixed float32 constants into T.
// A type that cannot hold the constant exactly is a broken instantiation, so
// this panics instead of returning an error.
func literal[T Float](v float32) T {
	t := T(v)
	f := float64(t)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != float64(v) {
		panic(fmt.Sprintf("model: %T cannot represent constant %v", t, v))
	}
	return t
}

func toRadians[T Float](deg T) T {
	return T(float64(deg) * math.Pi / 180)
}

func sin[T Float](x T) T { return T(math.Sin(float64(x))) }

func cos[T Float](x T) T { return T(math.Cos(float64(x))) }

func sqrt[T Float](x T) T { return T(math.Sqrt(float64(x))) }

func atan2[T Float](y, x T) T { return T(math.Atan2(float64(y), float64(x))) }

// sum adds values in order, starting from zero.
func sum[T Float](values []T) T {
	total := literal[T](0.0)
	for _, v := range values {
		total += v
	}
	return total
}

// formatFixed renders v with exactly seven digits after the decimal point.
func formatFixed[T Float](v T) string {
	return strconv.FormatFloat(float64(v), 'f', 7, 64)
}
