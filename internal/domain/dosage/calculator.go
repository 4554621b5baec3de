package dosage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Request carries everything needed for a complete dispensation calculation.
type Request struct {
	PrescribedDose  decimal.Decimal
	PrescribedUnit  string
	Config          Config
	FrequencyPerDay int
	TreatmentDays   int
}

func (r Request) validate() error {
	if !r.PrescribedDose.IsPositive() {
		return fmt.Errorf("%w: prescribed dose must be positive", ErrInvalidInput)
	}
	if r.FrequencyPerDay < 1 {
		return fmt.Errorf("%w: frequency per day must be at least 1", ErrInvalidInput)
	}
	if r.TreatmentDays < 1 {
		return fmt.Errorf("%w: treatment days must be at least 1", ErrInvalidInput)
	}
	return nil
}

// DoseVolumeResult is the volume of drug form delivering one prescribed dose.
type DoseVolumeResult struct {
	Volume            decimal.Decimal `json:"volume"`
	Unit              string          `json:"unit"`
	ConvertedDose     decimal.Decimal `json:"converted_dose"`
	ConversionApplied bool            `json:"conversion_applied"`
	Formula           string          `json:"formula"`
}

// DoseVolume computes the volume for one dose by cross-multiplication: the
// ratio StrengthValue : VolumePerDose is held constant.
func DoseVolume(prescribedDose decimal.Decimal, prescribedUnit string, cfg Config) (DoseVolumeResult, error) {
	// Standalone dose math needs the concentration rules but not the
	// package ones, so validate against a package of exactly one dose,
	// which satisfies the package rules for any valid concentration.
	doseCfg := cfg
	doseCfg.PackageSize = cfg.VolumePerDose
	doseCfg.PackageUnit = cfg.VolumeUnit
	if err := doseCfg.Validate(); err != nil {
		return DoseVolumeResult{}, err
	}

	converted := prescribedDose
	applied := false
	if normalizeUnit(prescribedUnit) != normalizeUnit(cfg.StrengthUnit) {
		var err error
		converted, err = Convert(prescribedDose, prescribedUnit, cfg.StrengthUnit)
		if err != nil {
			return DoseVolumeResult{}, err
		}
		applied = true
	}

	volume := converted.Div(cfg.StrengthValue).Mul(cfg.VolumePerDose).Round(3)

	return DoseVolumeResult{
		Volume:            volume,
		Unit:              cfg.VolumeUnit,
		ConvertedDose:     converted,
		ConversionApplied: applied,
		Formula: fmt.Sprintf("(%s%s ÷ %s%s) × %s%s",
			converted, cfg.StrengthUnit, cfg.StrengthValue, cfg.StrengthUnit,
			cfg.VolumePerDose, cfg.VolumeUnit),
	}, nil
}

// TotalVolumeResult is the volume required for the whole treatment.
type TotalVolumeResult struct {
	TotalDoses int             `json:"total_doses"`
	Volume     decimal.Decimal `json:"volume"`
	Formula    string          `json:"formula"`
}

func TotalVolume(doseVolume decimal.Decimal, frequencyPerDay, treatmentDays int) TotalVolumeResult {
	totalDoses := frequencyPerDay * treatmentDays
	total := doseVolume.Mul(decimal.NewFromInt(int64(totalDoses))).Round(3)

	return TotalVolumeResult{
		TotalDoses: totalDoses,
		Volume:     total,
		Formula:    fmt.Sprintf("%s × %d × %d = %s", doseVolume, frequencyPerDay, treatmentDays, total),
	}
}

// PackagesResult is the whole-package count covering the total volume.
type PackagesResult struct {
	Packages       int             `json:"packages"`
	PackagesExact  decimal.Decimal `json:"packages_exact"`
	TotalDispensed decimal.Decimal `json:"total_dispensed"`
	Leftover       decimal.Decimal `json:"leftover"`
	Periods        int             `json:"periods"`
	Formula        string          `json:"formula"`
}

// PackagesNeeded rounds the package count up; under-dispensing a unit must
// never happen. When the stability window is shorter than the treatment the
// medication expires mid-course, so each stability period is provisioned
// with whole packages sized for its own sub-volume rather than dividing the
// grand total, which would under-provision boundary periods.
func PackagesNeeded(totalVolume, packageSize decimal.Decimal, stabilityDays *int, treatmentDays int) PackagesResult {
	exact := totalVolume.Div(packageSize)
	packages := int(exact.Ceil().IntPart())
	periods := 1

	if stabilityDays != nil && *stabilityDays > 0 && *stabilityDays < treatmentDays {
		periods = (treatmentDays + *stabilityDays - 1) / *stabilityDays
		volumePerPeriod := totalVolume.Div(decimal.NewFromInt(int64(periods)))
		packagesPerPeriod := int(volumePerPeriod.Div(packageSize).Ceil().IntPart())
		packages = packagesPerPeriod * periods
	}

	totalDispensed := packageSize.Mul(decimal.NewFromInt(int64(packages))).Round(3)
	leftover := totalDispensed.Sub(totalVolume).Round(3)

	return PackagesResult{
		Packages:       packages,
		PackagesExact:  exact.Round(2),
		TotalDispensed: totalDispensed,
		Leftover:       leftover,
		Periods:        periods,
		Formula: fmt.Sprintf("%s ÷ %s = %s → %d package(s)",
			totalVolume, packageSize, exact.Round(2), packages),
	}
}

// DropsInfo reports the drop equivalents of a liquid dose. Drops are rounded
// to the nearest whole drop; the underlying volume stays authoritative for
// package math.
type DropsInfo struct {
	PerDose    int64  `json:"per_dose"`
	PerDay     int64  `json:"per_day"`
	Total      int64  `json:"total"`
	Conversion string `json:"conversion"`
}

type StabilityInfo struct {
	Days       int    `json:"days"`
	Sufficient bool   `json:"sufficient"`
	Periods    int    `json:"periods"`
	Warning    string `json:"warning,omitempty"`
}

type Details struct {
	DoseFormula       string `json:"dose_formula"`
	FrequencyText     string `json:"frequency_text"`
	TotalCalculation  string `json:"total_calculation"`
	PackagesFormula   string `json:"packages_formula"`
	ConversionApplied bool   `json:"conversion_applied"`
	Configuration     string `json:"configuration"`
}

// Result is the complete dispensation calculation with every intermediate
// value kept for display and audit.
type Result struct {
	DosePerAdministration decimal.Decimal `json:"dose_per_administration"`
	DoseUnit              string          `json:"dose_unit"`
	TotalDoses            int             `json:"total_doses"`
	TotalVolume           decimal.Decimal `json:"total_volume"`
	PackagesNeeded        int             `json:"packages_needed"`
	TotalDispensed        decimal.Decimal `json:"total_dispensed"`
	Leftover              decimal.Decimal `json:"leftover"`
	Drops                 *DropsInfo      `json:"drops,omitempty"`
	Stability             *StabilityInfo  `json:"stability,omitempty"`
	Details               Details         `json:"details"`
}

// Complete runs the full pipeline: validate configuration, dose volume,
// total volume, packages with stability re-batching, drops. Any stage
// failure aborts the calculation; no partial results are returned. Stock
// sufficiency is the orchestrator's concern, not checked here.
func Complete(req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	dose, err := DoseVolume(req.PrescribedDose, req.PrescribedUnit, req.Config)
	if err != nil {
		return nil, err
	}

	total := TotalVolume(dose.Volume, req.FrequencyPerDay, req.TreatmentDays)
	packages := PackagesNeeded(total.Volume, req.Config.PackageSize, req.Config.StabilityDays, req.TreatmentDays)

	var drops *DropsInfo
	if req.Config.DropsPerML != nil && normalizeUnit(req.Config.VolumeUnit) == "ml" {
		perMl := decimal.NewFromInt(int64(*req.Config.DropsPerML))
		perDose := dose.Volume.Mul(perMl)
		drops = &DropsInfo{
			PerDose:    perDose.Round(0).IntPart(),
			PerDay:     perDose.Mul(decimal.NewFromInt(int64(req.FrequencyPerDay))).Round(0).IntPart(),
			Total:      perDose.Mul(decimal.NewFromInt(int64(total.TotalDoses))).Round(0).IntPart(),
			Conversion: fmt.Sprintf("%sml = %s drops", dose.Volume, perDose.Round(0)),
		}
	}

	var stability *StabilityInfo
	if req.Config.StabilityDays != nil {
		stability = &StabilityInfo{
			Days:       *req.Config.StabilityDays,
			Sufficient: req.TreatmentDays <= *req.Config.StabilityDays,
			Periods:    packages.Periods,
		}
		if packages.Periods > 1 {
			stability.Warning = fmt.Sprintf(
				"medication stable for %d days; dispense %d package(s) across %d period(s)",
				*req.Config.StabilityDays, packages.Packages, packages.Periods)
		}
	}

	return &Result{
		DosePerAdministration: dose.Volume,
		DoseUnit:              dose.Unit,
		TotalDoses:            total.TotalDoses,
		TotalVolume:           total.Volume,
		PackagesNeeded:        packages.Packages,
		TotalDispensed:        packages.TotalDispensed,
		Leftover:              packages.Leftover,
		Drops:                 drops,
		Stability:             stability,
		Details: Details{
			DoseFormula:       dose.Formula,
			FrequencyText:     fmt.Sprintf("%dx/day for %d days", req.FrequencyPerDay, req.TreatmentDays),
			TotalCalculation:  total.Formula,
			PackagesFormula:   packages.Formula,
			ConversionApplied: dose.ConversionApplied,
			Configuration: fmt.Sprintf("%s%s/%s%s (package: %s%s)",
				req.Config.StrengthValue, req.Config.StrengthUnit,
				req.Config.VolumePerDose, req.Config.VolumeUnit,
				req.Config.PackageSize, req.Config.PackageUnit),
		},
	}, nil
}
