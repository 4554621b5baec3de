package dosage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config is a medication's dispensing configuration: its concentration
// (StrengthValue per VolumePerDose, e.g. 250 mg per 5 ml), the sellable
// package, and the optional drop-conversion and stability window.
type Config struct {
	StrengthValue decimal.Decimal
	StrengthUnit  string
	VolumePerDose decimal.Decimal
	VolumeUnit    string
	PackageSize   decimal.Decimal
	PackageUnit   string
	DropsPerML    *int
	StabilityDays *int
}

var (
	minLiquidDose = decimal.RequireFromString("0.1")
	one           = decimal.New(1, 0)
)

// Validate checks the configuration against the pharmacological rules.
// It returns a *ConfigError describing the first violated rule.
func (c Config) Validate() error {
	volumeKind := KindOf(c.VolumeUnit)

	if volumeKind == KindSolid && !c.VolumePerDose.Equal(one) {
		return &ConfigError{Reason: fmt.Sprintf(
			"for %s the volume per dose must be 1 (each %s contains %s%s)",
			c.VolumeUnit, c.VolumeUnit, c.StrengthValue, c.StrengthUnit)}
	}

	if volumeKind == KindVolume && c.VolumePerDose.LessThan(minLiquidDose) {
		return &ConfigError{Reason: fmt.Sprintf(
			"volume per dose too small for a liquid medication: %s%s",
			c.VolumePerDose, c.VolumeUnit)}
	}

	if normalizeUnit(c.VolumeUnit) == normalizeUnit(c.PackageUnit) && c.PackageSize.LessThan(c.VolumePerDose) {
		return &ConfigError{Reason: fmt.Sprintf(
			"package (%s%s) cannot be smaller than the volume per dose (%s%s)",
			c.PackageSize, c.PackageUnit, c.VolumePerDose, c.VolumeUnit)}
	}

	if !c.StrengthValue.IsPositive() {
		return &ConfigError{Reason: fmt.Sprintf(
			"strength must be positive: %s%s", c.StrengthValue, c.StrengthUnit)}
	}

	if volumeKind == KindSolid && !c.PackageSize.IsInteger() {
		return &ConfigError{Reason: fmt.Sprintf(
			"for %s the package size must be a whole number: %s",
			c.VolumeUnit, c.PackageSize)}
	}

	return nil
}
