package model

import (
	"errors"
	"fmt"
	"strings"
)

// EnergyType identifies the generation source behind an offer.
type EnergyType string

const (
	EnergySolar   EnergyType = "solar"
	EnergyWind    EnergyType = "wind"
	EnergyHydro   EnergyType = "hydro"
	EnergyBiomass EnergyType = "biomass"
	EnergyOther   EnergyType = "other"
)

var validEnergyTypes = map[EnergyType]bool{
	EnergySolar:   true,
	EnergyWind:    true,
	EnergyHydro:   true,
	EnergyBiomass: true,
	EnergyOther:   true,
}

// ErrInvalidEnergyType is returned for unrecognized energy type strings.
var ErrInvalidEnergyType = errors.New("model: invalid energy type")

// ParseEnergyType parses a case-insensitive energy type string.
func ParseEnergyType(s string) (EnergyType, error) {
	et := EnergyType(strings.ToLower(s))
	if !validEnergyTypes[et] {
		return "", fmt.Errorf("%w: %q (expected solar|wind|hydro|biomass|other)", ErrInvalidEnergyType, s)
	}
	return et, nil
}

// Valid reports whether et is one of the known energy types.
func (et EnergyType) Valid() bool {
	return validEnergyTypes[et]
}

func (et EnergyType) String() string {
	return string(et)
}
