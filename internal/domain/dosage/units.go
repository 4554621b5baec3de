package dosage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type UnitKind string

const (
	KindWeight  UnitKind = "weight"
	KindVolume  UnitKind = "volume"
	KindSolid   UnitKind = "solid"
	KindUnknown UnitKind = "unknown"
)

// weightFactors maps weight units to milligrams, the base unit.
var weightFactors = map[string]decimal.Decimal{
	"kg":  decimal.New(1, 6),
	"g":   decimal.New(1, 3),
	"mg":  decimal.New(1, 0),
	"mcg": decimal.New(1, -3),
	"µg":  decimal.New(1, -3),
	"ug":  decimal.New(1, -3),
	"ng":  decimal.New(1, -6),
}

// volumeFactors maps volume units to milliliters, the base unit.
var volumeFactors = map[string]decimal.Decimal{
	"l":  decimal.New(1, 3),
	"ml": decimal.New(1, 0),
	"cc": decimal.New(1, 0),
	"dl": decimal.New(1, 2),
	"cl": decimal.New(1, 1),
}

// solidUnits are discrete dose forms. They are never converted; a tablet is
// always one tablet.
var solidUnits = map[string]struct{}{
	"comp":       {},
	"comprimido": {},
	"caps":       {},
	"capsula":    {},
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// KindOf classifies a unit as weight, volume, solid, or unknown.
func KindOf(unit string) UnitKind {
	u := normalizeUnit(unit)
	if _, ok := weightFactors[u]; ok {
		return KindWeight
	}
	if _, ok := volumeFactors[u]; ok {
		return KindVolume
	}
	if _, ok := solidUnits[u]; ok {
		return KindSolid
	}
	return KindUnknown
}

// Convert converts a value between two units of the same kind. Equal units
// pass through unchanged, including solid and unrecognized ones.
func Convert(value decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error) {
	from := normalizeUnit(fromUnit)
	to := normalizeUnit(toUnit)

	if from == to {
		return value, nil
	}

	if fromFactor, ok := weightFactors[from]; ok {
		if toFactor, ok := weightFactors[to]; ok {
			return value.Mul(fromFactor).Div(toFactor), nil
		}
	}

	if fromFactor, ok := volumeFactors[from]; ok {
		if toFactor, ok := volumeFactors[to]; ok {
			return value.Mul(fromFactor).Div(toFactor), nil
		}
	}

	return decimal.Zero, fmt.Errorf("%w: %q to %q", ErrUnsupportedConversion, fromUnit, toUnit)
}

// SupportedUnits lists every accepted unit by category.
type SupportedUnits struct {
	Weight []string `json:"weight"`
	Volume []string `json:"volume"`
	Solid  []string `json:"solid"`
}

func Units() SupportedUnits {
	return SupportedUnits{
		Weight: []string{"kg", "g", "mg", "mcg", "µg", "ug", "ng"},
		Volume: []string{"l", "ml", "cc", "dl", "cl"},
		Solid:  []string{"comp", "comprimido", "caps", "capsula"},
	}
}
