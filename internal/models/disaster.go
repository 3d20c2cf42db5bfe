package models

import (
	"fmt"
	"strings"
)

type DisasterType int

const (
	DisasterTypeNone DisasterType = iota
	DisasterTypeFlood
	DisasterTypeCyclone
	DisasterTypeEarthquake
	DisasterTypeHeatwave
	DisasterTypeDrought
	DisasterTypeTsunami
	DisasterTypeWildfire
	DisasterTypeLandslide
)

var disasterTypes = []DisasterType{
	DisasterTypeNone,
	DisasterTypeFlood,
	DisasterTypeCyclone,
	DisasterTypeEarthquake,
	DisasterTypeHeatwave,
	DisasterTypeDrought,
	DisasterTypeTsunami,
	DisasterTypeWildfire,
	DisasterTypeLandslide,
}

// DisasterTypes returns every known disaster type in declaration order.
func DisasterTypes() []DisasterType {
	out := make([]DisasterType, len(disasterTypes))
	copy(out, disasterTypes)
	return out
}

func (t DisasterType) String() string {
	switch t {
	case DisasterTypeNone:
		return "None"
	case DisasterTypeFlood:
		return "Flood"
	case DisasterTypeCyclone:
		return "Cyclone"
	case DisasterTypeEarthquake:
		return "Earthquake"
	case DisasterTypeHeatwave:
		return "Heatwave"
	case DisasterTypeDrought:
		return "Drought"
	case DisasterTypeTsunami:
		return "Tsunami"
	case DisasterTypeWildfire:
		return "Wildfire"
	case DisasterTypeLandslide:
		return "Landslide"
	}
	panic(fmt.Sprintf("models: unhandled disaster type %d", int(t)))
}

// Color is the dashboard color for a disaster type.
func (t DisasterType) Color() string {
	switch t {
	case DisasterTypeNone:
		return "green"
	case DisasterTypeFlood:
		return "blue"
	case DisasterTypeCyclone:
		return "purple"
	case DisasterTypeEarthquake:
		return "brown"
	case DisasterTypeHeatwave:
		return "red"
	case DisasterTypeDrought:
		return "orange"
	case DisasterTypeTsunami:
		return "teal"
	case DisasterTypeWildfire:
		return "crimson"
	case DisasterTypeLandslide:
		return "olive"
	}
	panic(fmt.Sprintf("models: unhandled disaster type %d", int(t)))
}

// Icon is the short icon name used by map and list views.
func (t DisasterType) Icon() string {
	switch t {
	case DisasterTypeNone:
		return "check-circle"
	case DisasterTypeFlood:
		return "water"
	case DisasterTypeCyclone:
		return "hurricane"
	case DisasterTypeEarthquake:
		return "activity"
	case DisasterTypeHeatwave:
		return "thermometer"
	case DisasterTypeDrought:
		return "sun"
	case DisasterTypeTsunami:
		return "waves"
	case DisasterTypeWildfire:
		return "flame"
	case DisasterTypeLandslide:
		return "mountain"
	}
	panic(fmt.Sprintf("models: unhandled disaster type %d", int(t)))
}

func ParseDisasterType(s string) (DisasterType, error) {
	for _, t := range disasterTypes {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return DisasterTypeNone, fmt.Errorf("unknown disaster type %q", s)
}

func (t DisasterType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DisasterType) UnmarshalText(b []byte) error {
	parsed, err := ParseDisasterType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
