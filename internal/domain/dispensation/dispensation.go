package dispensation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Dispensation is one counter transaction handing medications to a patient.
type Dispensation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID   uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DispenserID uuid.UUID `gorm:"column:dispenser_id;type:uuid;not null;index"`

	DispensedAt  time.Time       `gorm:"column:dispensed_at;not null;index"`
	Status       Status          `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	Observations string          `gorm:"column:observations;type:text"`
	TotalCost    decimal.Decimal `gorm:"column:total_cost;type:decimal(10,2);not null;default:0"`

	Items []*Item `gorm:"foreignKey:DispensationID"`
}

func (Dispensation) TableName() string {
	return "pharmacy.dispensations"
}

// Item is one medication line within a dispensation. The optional
// prescription parameters feed the dosage calculator and are kept for audit.
type Item struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	DispensationID uuid.UUID `gorm:"column:dispensation_id;type:uuid;not null;index"`
	MedicationID   uuid.UUID `gorm:"column:medication_id;type:uuid;not null;index"`

	QuantityDispensed int             `gorm:"column:quantity_dispensed;not null"`
	UnitCost          decimal.Decimal `gorm:"column:unit_cost;type:decimal(10,2);not null;default:0"`
	TotalCost         decimal.Decimal `gorm:"column:total_cost;type:decimal(10,2);not null;default:0"`
	Observations      string          `gorm:"column:observations;type:text"`

	PrescribedDose  *decimal.Decimal `gorm:"column:prescribed_dose;type:decimal(12,3)"`
	PrescribedUnit  string           `gorm:"column:prescribed_unit;type:varchar(10)"`
	FrequencyPerDay *int             `gorm:"column:frequency_per_day"`
	TreatmentDays   *int             `gorm:"column:treatment_days"`
}

func (Item) TableName() string {
	return "pharmacy.dispensation_items"
}

type MovementType string

const (
	MovementEntry      MovementType = "entry"
	MovementExit       MovementType = "exit"
	MovementAdjustment MovementType = "adjustment"
	MovementExpiry     MovementType = "expiry"
)

// InventoryMovement is the append-only stock ledger row written for every
// stock change, carrying before and after balances.
type InventoryMovement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	MedicationID uuid.UUID `gorm:"column:medication_id;type:uuid;not null;index"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null"`

	Type          MovementType `gorm:"column:movement_type;type:varchar(20);not null"`
	Quantity      int          `gorm:"column:quantity;not null"`
	PreviousStock int          `gorm:"column:previous_stock;not null"`
	NewStock      int          `gorm:"column:new_stock;not null"`

	Reason        string     `gorm:"column:reason;type:varchar(200)"`
	ReferenceID   *uuid.UUID `gorm:"column:reference_id;type:uuid;index"`
	ReferenceType string     `gorm:"column:reference_type;type:varchar(50)"`
}

func (InventoryMovement) TableName() string {
	return "pharmacy.inventory_movements"
}
