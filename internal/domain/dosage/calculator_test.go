package dosage

import (
	"errors"
	"reflect"
	"strconv"
	"testing"
)

func intPtr(i int) *int { return &i }

// amoxicillin suspension 250mg/5ml, 150ml bottle
func liquidConfig() Config {
	return Config{
		StrengthValue: dec("250"),
		StrengthUnit:  "mg",
		VolumePerDose: dec("5"),
		VolumeUnit:    "ml",
		PackageSize:   dec("150"),
		PackageUnit:   "ml",
	}
}

// amoxicillin 750mg tablets, box of 12
func tabletConfig() Config {
	return Config{
		StrengthValue: dec("750"),
		StrengthUnit:  "mg",
		VolumePerDose: dec("1"),
		VolumeUnit:    "comp",
		PackageSize:   dec("12"),
		PackageUnit:   "comp",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		base    Config
		wantErr bool
	}{
		{"valid liquid", func(c *Config) {}, liquidConfig(), false},
		{"valid tablet", func(c *Config) {}, tabletConfig(), false},
		{"tablet volume per dose not 1", func(c *Config) { c.VolumePerDose = dec("10") }, tabletConfig(), true},
		{"liquid dose below 0.1ml", func(c *Config) { c.VolumePerDose = dec("0.05") }, liquidConfig(), true},
		{"package smaller than dose", func(c *Config) { c.PackageSize = dec("3") }, liquidConfig(), true},
		{"zero strength", func(c *Config) { c.StrengthValue = dec("0") }, liquidConfig(), true},
		{"negative strength", func(c *Config) { c.StrengthValue = dec("-250") }, liquidConfig(), true},
		{"fractional tablet package", func(c *Config) { c.PackageSize = dec("12.5") }, tabletConfig(), true},
		{"capsule form enforces unit dose", func(c *Config) { c.VolumeUnit = "capsula"; c.PackageUnit = "capsula"; c.VolumePerDose = dec("2") }, tabletConfig(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Validate() error type = %T, want *ConfigError", err)
				}
			}
		})
	}
}

func TestDoseVolume(t *testing.T) {
	got, err := DoseVolume(dec("500"), "mg", liquidConfig())
	if err != nil {
		t.Fatalf("DoseVolume() error = %v", err)
	}
	if !got.Volume.Equal(dec("10")) {
		t.Errorf("dose volume = %s, want 10", got.Volume)
	}
	if got.Unit != "ml" {
		t.Errorf("dose unit = %s, want ml", got.Unit)
	}
	if got.ConversionApplied {
		t.Error("conversion applied for matching units")
	}
}

func TestDoseVolumeWithConversion(t *testing.T) {
	// 0.5g prescribed against a 250mg/5ml concentration
	got, err := DoseVolume(dec("0.5"), "g", liquidConfig())
	if err != nil {
		t.Fatalf("DoseVolume() error = %v", err)
	}
	if !got.Volume.Equal(dec("10")) {
		t.Errorf("dose volume = %s, want 10", got.Volume)
	}
	if !got.ConversionApplied {
		t.Error("conversion not flagged")
	}
	if !got.ConvertedDose.Equal(dec("500")) {
		t.Errorf("converted dose = %s, want 500", got.ConvertedDose)
	}
}

func TestDoseVolumeIncompatibleUnits(t *testing.T) {
	_, err := DoseVolume(dec("5"), "ml", liquidConfig())
	if !errors.Is(err, ErrUnsupportedConversion) {
		t.Errorf("error = %v, want ErrUnsupportedConversion", err)
	}
}

func TestDoseVolumeInvalidConfig(t *testing.T) {
	cfg := tabletConfig()
	cfg.VolumePerDose = dec("10")
	_, err := DoseVolume(dec("750"), "mg", cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error = %v, want *ConfigError", err)
	}
}

func TestDoseVolumeIgnoresPackageRules(t *testing.T) {
	// The synthetic package used for dose-only validation must not trip
	// the package rules when the dose volume exceeds one unit.
	cfg := liquidConfig()
	cfg.PackageSize = dec("3") // smaller than the 5ml per-dose volume
	got, err := DoseVolume(dec("500"), "mg", cfg)
	if err != nil {
		t.Fatalf("DoseVolume() error = %v", err)
	}
	if !got.Volume.Equal(dec("10")) {
		t.Errorf("dose volume = %s, want 10", got.Volume)
	}
}

func TestTotalVolume(t *testing.T) {
	got := TotalVolume(dec("10"), 3, 7)
	if got.TotalDoses != 21 {
		t.Errorf("total doses = %d, want 21", got.TotalDoses)
	}
	if !got.Volume.Equal(dec("210")) {
		t.Errorf("total volume = %s, want 210", got.Volume)
	}
}

func TestPackagesNeeded(t *testing.T) {
	got := PackagesNeeded(dec("210"), dec("150"), nil, 7)
	if got.Packages != 2 {
		t.Errorf("packages = %d, want 2", got.Packages)
	}
	if !got.TotalDispensed.Equal(dec("300")) {
		t.Errorf("total dispensed = %s, want 300", got.TotalDispensed)
	}
	if !got.Leftover.Equal(dec("90")) {
		t.Errorf("leftover = %s, want 90", got.Leftover)
	}
	if got.Periods != 1 {
		t.Errorf("periods = %d, want 1", got.Periods)
	}
}

func TestPackagesNeededExactFit(t *testing.T) {
	got := PackagesNeeded(dec("300"), dec("150"), nil, 7)
	if got.Packages != 2 {
		t.Errorf("packages = %d, want 2", got.Packages)
	}
	if !got.Leftover.IsZero() {
		t.Errorf("leftover = %s, want 0", got.Leftover)
	}
}

func TestPackagesNeededWithStability(t *testing.T) {
	// 210ml over 7 days, but the bottle only lasts 5 days once opened:
	// two periods of 105ml each, one 150ml bottle per period.
	got := PackagesNeeded(dec("210"), dec("150"), intPtr(5), 7)
	if got.Periods != 2 {
		t.Fatalf("periods = %d, want 2", got.Periods)
	}
	if got.Packages != 2 {
		t.Errorf("packages = %d, want 2", got.Packages)
	}
	// Every period must be covered by its own whole packages.
	perPeriod := got.Packages / got.Periods
	periodVolume := dec("210").Div(dec("2"))
	periodCapacity := dec("150").Mul(dec(strconv.Itoa(perPeriod)))
	if periodCapacity.LessThan(periodVolume) {
		t.Errorf("period capacity %s under-provisions period volume %s", periodCapacity, periodVolume)
	}
}

func TestPackagesNeededStabilityNeverUnderProvisions(t *testing.T) {
	// Naive division of the grand total would allocate 2 packages for
	// 3 periods and starve one of them.
	got := PackagesNeeded(dec("240"), dec("100"), intPtr(3), 9)
	if got.Periods != 3 {
		t.Fatalf("periods = %d, want 3", got.Periods)
	}
	if got.Packages != 3 {
		t.Errorf("packages = %d, want 3", got.Packages)
	}
}

func TestPackagesNeededStabilityLongerThanTreatment(t *testing.T) {
	got := PackagesNeeded(dec("210"), dec("150"), intPtr(30), 7)
	if got.Packages != 2 || got.Periods != 1 {
		t.Errorf("packages = %d periods = %d, want 2 and 1", got.Packages, got.Periods)
	}
}

func TestComplete(t *testing.T) {
	cfg := liquidConfig()
	cfg.DropsPerML = intPtr(20)

	req := Request{
		PrescribedDose:  dec("500"),
		PrescribedUnit:  "mg",
		Config:          cfg,
		FrequencyPerDay: 3,
		TreatmentDays:   7,
	}

	res, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if !res.DosePerAdministration.Equal(dec("10")) {
		t.Errorf("dose per administration = %s, want 10", res.DosePerAdministration)
	}
	if res.TotalDoses != 21 {
		t.Errorf("total doses = %d, want 21", res.TotalDoses)
	}
	if !res.TotalVolume.Equal(dec("210")) {
		t.Errorf("total volume = %s, want 210", res.TotalVolume)
	}
	if res.PackagesNeeded != 2 {
		t.Errorf("packages = %d, want 2", res.PackagesNeeded)
	}
	if !res.Leftover.Equal(dec("90")) {
		t.Errorf("leftover = %s, want 90", res.Leftover)
	}

	if res.Drops == nil {
		t.Fatal("drops info missing for ml medication with drops_per_ml")
	}
	if res.Drops.PerDose != 200 {
		t.Errorf("drops per dose = %d, want 200", res.Drops.PerDose)
	}
	if res.Drops.PerDay != 600 {
		t.Errorf("drops per day = %d, want 600", res.Drops.PerDay)
	}
}

func TestCompleteTablets(t *testing.T) {
	req := Request{
		PrescribedDose:  dec("750"),
		PrescribedUnit:  "mg",
		Config:          tabletConfig(),
		FrequencyPerDay: 2,
		TreatmentDays:   7,
	}

	res, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !res.DosePerAdministration.Equal(dec("1")) {
		t.Errorf("dose per administration = %s, want 1", res.DosePerAdministration)
	}
	if res.TotalDoses != 14 {
		t.Errorf("total doses = %d, want 14", res.TotalDoses)
	}
	// 14 tablets, boxes of 12 -> 2 boxes
	if res.PackagesNeeded != 2 {
		t.Errorf("packages = %d, want 2", res.PackagesNeeded)
	}
	if res.Drops != nil {
		t.Error("drops info present for a solid form")
	}
}

func TestCompleteNoDropsWithoutFactor(t *testing.T) {
	req := Request{
		PrescribedDose:  dec("500"),
		PrescribedUnit:  "mg",
		Config:          liquidConfig(),
		FrequencyPerDay: 3,
		TreatmentDays:   7,
	}
	res, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Drops != nil {
		t.Error("drops info present without drops_per_ml configured")
	}
}

func TestCompleteStability(t *testing.T) {
	cfg := liquidConfig()
	cfg.StabilityDays = intPtr(5)

	req := Request{
		PrescribedDose:  dec("500"),
		PrescribedUnit:  "mg",
		Config:          cfg,
		FrequencyPerDay: 3,
		TreatmentDays:   7,
	}

	res, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Stability == nil {
		t.Fatal("stability info missing")
	}
	if res.Stability.Sufficient {
		t.Error("stability marked sufficient for a 7-day treatment with a 5-day window")
	}
	if res.Stability.Periods != 2 {
		t.Errorf("periods = %d, want 2", res.Stability.Periods)
	}
	if res.Stability.Warning == "" {
		t.Error("stability warning missing for multi-period dispensation")
	}
}

func TestCompleteIsPure(t *testing.T) {
	cfg := liquidConfig()
	cfg.DropsPerML = intPtr(20)
	cfg.StabilityDays = intPtr(5)

	req := Request{
		PrescribedDose:  dec("500"),
		PrescribedUnit:  "mg",
		Config:          cfg,
		FrequencyPerDay: 3,
		TreatmentDays:   7,
	}

	first, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	second, err := Complete(req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
}

func TestCompleteInvalidInputs(t *testing.T) {
	base := Request{
		PrescribedDose:  dec("500"),
		PrescribedUnit:  "mg",
		Config:          liquidConfig(),
		FrequencyPerDay: 3,
		TreatmentDays:   7,
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero dose", func(r *Request) { r.PrescribedDose = dec("0") }},
		{"negative dose", func(r *Request) { r.PrescribedDose = dec("-5") }},
		{"zero frequency", func(r *Request) { r.FrequencyPerDay = 0 }},
		{"zero days", func(r *Request) { r.TreatmentDays = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := Complete(req); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
