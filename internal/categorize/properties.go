package categorize

import (
	"sort"
)

// EdgeProperties holds the accessibility of an edge for each transport mode
// and direction. Forward is the direction of the edge geometry.
type EdgeProperties struct {
	Foot         FootAccess `json:"foot"`
	CarForward   CarAccess  `json:"car_forward"`
	CarBackward  CarAccess  `json:"car_backward"`
	BikeForward  BikeAccess `json:"bike_forward"`
	BikeBackward BikeAccess `json:"bike_backward"`
}

// New returns properties with every mode unknown.
func New() EdgeProperties {
	return EdgeProperties{}
}

// FromTags classifies a complete tag set, then normalizes it. The highway tag
// is applied first so mode-specific tags override the road class defaults;
// the remaining tags follow in key order.
func FromTags(tags map[string]string) EdgeProperties {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		if k != "highway" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	p := New()
	if hw, ok := tags["highway"]; ok {
		p.Update("highway", hw)
	}
	for _, k := range keys {
		p.Update(k, tags[k])
	}
	p.Normalize()
	return p
}

// Update applies a single OSM tag.
func (p *EdgeProperties) Update(key, value string) {
	switch key {
	case "highway":
		p.updateHighway(value)
	case "pedestrian", "foot":
		if value == "no" {
			p.Foot = FootForbidden
		} else {
			p.Foot = FootAllowed
		}
	// https://wiki.openstreetmap.org/wiki/Key:cycleway
	case "cycleway":
		switch value {
		case "track":
			p.BikeForward = BikeTrack
		case "opposite_track":
			p.BikeBackward = BikeTrack
		case "opposite":
			p.BikeBackward = BikeAllowed
		case "share_busway":
			p.BikeForward = BikeBusway
		case "lane_left", "opposite_lane":
			p.BikeBackward = BikeLane
		default:
			p.BikeForward = BikeLane
		}
	case "bicycle":
		switch value {
		case "no", "false":
			p.BikeForward = BikeForbidden
		default:
			p.BikeForward = BikeAllowed
		}
	case "busway":
		switch value {
		case "opposite_lane", "opposite_track":
			p.BikeBackward = BikeBusway
		default:
			p.BikeForward = BikeBusway
		}
	case "oneway":
		switch value {
		case "yes", "true", "1":
			p.forbidBackward()
		}
	case "junction":
		if value == "roundabout" {
			p.forbidBackward()
		}
	}
}

func (p *EdgeProperties) updateHighway(value string) {
	switch value {
	case "cycleway", "path", "footway", "steps", "pedestrian":
		p.BikeForward = BikeTrack
		p.Foot = FootAllowed
	case "primary", "primary_link":
		p.CarForward = CarPrimary
		p.Foot = FootAllowed
		p.BikeForward = BikeAllowed
	case "secondary", "secondary_link":
		p.CarForward = CarSecondary
		p.Foot = FootAllowed
		p.BikeForward = BikeAllowed
	case "tertiary", "tertiary_link":
		p.CarForward = CarTertiary
		p.Foot = FootAllowed
		p.BikeForward = BikeAllowed
	case "unclassified", "residential", "living_street", "road", "service", "track":
		p.CarForward = CarResidential
		p.Foot = FootAllowed
		p.BikeForward = BikeAllowed
	case "motorway", "motorway_link":
		p.CarForward = CarMotorway
		p.Foot = FootForbidden
		p.BikeForward = BikeForbidden
	case "trunk", "trunk_link":
		p.CarForward = CarTrunk
		p.Foot = FootForbidden
		p.BikeForward = BikeForbidden
	}
}

func (p *EdgeProperties) forbidBackward() {
	p.CarBackward = CarForbidden
	if p.BikeBackward == BikeUnknown {
		p.BikeBackward = BikeForbidden
	}
}

// Normalize resolves unknown values: backward directions inherit the forward
// value, and whatever is still unknown becomes forbidden.
func (p *EdgeProperties) Normalize() {
	if p.CarBackward == CarUnknown {
		p.CarBackward = p.CarForward
	}
	if p.BikeBackward == BikeUnknown {
		p.BikeBackward = p.BikeForward
	}
	if p.CarForward == CarUnknown {
		p.CarForward = CarForbidden
	}
	if p.CarBackward == CarUnknown {
		p.CarBackward = CarForbidden
	}
	if p.BikeForward == BikeUnknown {
		p.BikeForward = BikeForbidden
	}
	if p.BikeBackward == BikeUnknown {
		p.BikeBackward = BikeForbidden
	}
	if p.Foot == FootUnknown {
		p.Foot = FootForbidden
	}
}

// Accessible reports whether at least one mode may use the edge in at least
// one direction.
func (p EdgeProperties) Accessible() bool {
	return p.Foot != FootForbidden ||
		p.CarForward != CarForbidden ||
		p.CarBackward != CarForbidden ||
		p.BikeForward != BikeForbidden ||
		p.BikeBackward != BikeForbidden
}
