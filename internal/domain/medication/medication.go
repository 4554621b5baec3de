package medication

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaops/doseflow/internal/domain/dosage"
)

type MedicationType string

const (
	TypeBasic        MedicationType = "basic"
	TypeControlled   MedicationType = "controlled"
	TypeHighCost     MedicationType = "high_cost"
	TypePsychotropic MedicationType = "psychotropic"
)

func (t MedicationType) IsValid() bool {
	switch t {
	case TypeBasic, TypeControlled, TypeHighCost, TypePsychotropic:
		return true
	}
	return false
}

type Medication struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	CommercialName     string `gorm:"column:commercial_name;type:varchar(100);not null;index"`
	GenericName        string `gorm:"column:generic_name;type:varchar(100);not null;index"`
	Dosage             string `gorm:"column:dosage;type:varchar(50);not null"`
	PharmaceuticalForm string `gorm:"column:pharmaceutical_form;type:varchar(50);not null"`

	Type                 MedicationType `gorm:"column:medication_type;type:varchar(20);not null;default:'basic';index"`
	RequiresPrescription bool           `gorm:"column:requires_prescription;default:true"`
	ControlledSubstance  bool           `gorm:"column:controlled_substance;default:false"`

	CurrentStock int              `gorm:"column:current_stock;not null;default:0"`
	MinimumStock int              `gorm:"column:minimum_stock;not null;default:10"`
	UnitCost     *decimal.Decimal `gorm:"column:unit_cost;type:decimal(10,2)"`

	BatchNumber string     `gorm:"column:batch_number;type:varchar(50)"`
	ExpiryDate  *time.Time `gorm:"column:expiry_date;type:date"`

	IsActive bool `gorm:"column:is_active;default:true;index"`
}

func (Medication) TableName() string {
	return "pharmacy.medications"
}

func (m *Medication) IsLowStock() bool {
	return m.CurrentStock <= m.MinimumStock
}

func (m *Medication) IsNearExpiry(now time.Time) bool {
	if m.ExpiryDate == nil {
		return false
	}
	return m.ExpiryDate.Sub(now) <= 30*24*time.Hour
}

// DispensingConfig holds a medication's dosage-calculation parameters:
// concentration, package, drop factor, and stability window. At most one
// active config exists per medication; old ones are deactivated, not deleted.
type DispensingConfig struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	MedicationID uuid.UUID `gorm:"column:medication_id;type:uuid;not null;index"`

	StrengthValue decimal.Decimal `gorm:"column:strength_value;type:decimal(12,3);not null"`
	StrengthUnit  string          `gorm:"column:strength_unit;type:varchar(10);not null"`
	VolumePerDose decimal.Decimal `gorm:"column:volume_per_dose;type:decimal(12,3);not null"`
	VolumeUnit    string          `gorm:"column:volume_unit;type:varchar(15);not null"`
	PackageSize   decimal.Decimal `gorm:"column:package_size;type:decimal(12,3);not null"`
	PackageUnit   string          `gorm:"column:package_unit;type:varchar(15);not null"`

	DropsPerML    *int `gorm:"column:drops_per_ml"`
	StabilityDays *int `gorm:"column:stability_days"`

	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (DispensingConfig) TableName() string {
	return "pharmacy.dispensing_configs"
}

// DosageConfig adapts the stored row to the calculator's value type.
func (c *DispensingConfig) DosageConfig() dosage.Config {
	return dosage.Config{
		StrengthValue: c.StrengthValue,
		StrengthUnit:  c.StrengthUnit,
		VolumePerDose: c.VolumePerDose,
		VolumeUnit:    c.VolumeUnit,
		PackageSize:   c.PackageSize,
		PackageUnit:   c.PackageUnit,
		DropsPerML:    c.DropsPerML,
		StabilityDays: c.StabilityDays,
	}
}

type SaveConfigCommand struct {
	MedicationID  uuid.UUID
	StrengthValue decimal.Decimal
	StrengthUnit  string
	VolumePerDose decimal.Decimal
	VolumeUnit    string
	PackageSize   decimal.Decimal
	PackageUnit   string
	DropsPerML    *int
	StabilityDays *int
	CreatedBy     uuid.UUID
}
