// Package categorize classifies OSM way tags into per-mode accessibility.
package categorize

import (
	"github.com/rotisserie/eris"
)

// FootAccess describes whether pedestrians may use an edge.
type FootAccess uint8

const (
	FootUnknown FootAccess = iota
	FootForbidden
	FootAllowed
)

// CarAccess describes whether cars may use an edge and, if so, the road class.
type CarAccess uint8

const (
	CarUnknown CarAccess = iota
	CarForbidden
	CarResidential
	CarTertiary
	CarSecondary
	CarPrimary
	CarTrunk
	CarMotorway
)

// BikeAccess describes whether bicycles may use an edge and on what kind of
// infrastructure.
type BikeAccess uint8

const (
	BikeUnknown BikeAccess = iota
	BikeForbidden
	BikeAllowed
	BikeLane
	BikeBusway
	BikeTrack
)

var footNames = []string{"unknown", "forbidden", "allowed"}

var carNames = []string{"unknown", "forbidden", "residential", "tertiary", "secondary", "primary", "trunk", "motorway"}

var bikeNames = []string{"unknown", "forbidden", "allowed", "lane", "busway", "track"}

func (a FootAccess) String() string { return enumName(footNames, uint8(a)) }
func (a CarAccess) String() string  { return enumName(carNames, uint8(a)) }
func (a BikeAccess) String() string { return enumName(bikeNames, uint8(a)) }

// MarshalText implements encoding.TextMarshaler.
func (a FootAccess) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// MarshalText implements encoding.TextMarshaler.
func (a CarAccess) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// MarshalText implements encoding.TextMarshaler.
func (a BikeAccess) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *FootAccess) UnmarshalText(b []byte) error {
	v, err := enumValue(footNames, string(b))
	*a = FootAccess(v)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *CarAccess) UnmarshalText(b []byte) error {
	v, err := enumValue(carNames, string(b))
	*a = CarAccess(v)
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *BikeAccess) UnmarshalText(b []byte) error {
	v, err := enumValue(bikeNames, string(b))
	*a = BikeAccess(v)
	return err
}

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "invalid"
}

func enumValue(names []string, s string) (uint8, error) {
	for i, n := range names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, eris.Errorf("categorize: unknown access value %q", s)
}
