package control

import (
	"time"

	"github.com/google/uuid"
)

// DispensationControl is the interval-control ledger entry for one
// (patient, medication) pair. At most one active record exists per pair;
// deactivated records are retained for audit, never deleted.
type DispensationControl struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID          uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	MedicationID       uuid.UUID `gorm:"column:medication_id;type:uuid;not null;index"`
	DispensationItemID uuid.UUID `gorm:"column:dispensation_item_id;type:uuid;not null"`

	LastDispensationDate time.Time `gorm:"column:last_dispensation_date;type:date;not null"`
	NextAllowedDate      time.Time `gorm:"column:next_allowed_date;type:date;not null;index"`
	IntervalDaysUsed     int       `gorm:"column:interval_days_used;not null"`

	IsActive         bool `gorm:"column:is_active;default:true;index"`
	WasReleasedEarly bool `gorm:"column:was_released_early;default:false"`
}

func (DispensationControl) TableName() string {
	return "pharmacy.dispensation_controls"
}

// dateOnly truncates a timestamp to its calendar date in UTC. All interval
// arithmetic works on whole days.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CanDispense reports whether the interval has elapsed as of today.
func (c *DispensationControl) CanDispense(today time.Time) bool {
	return !dateOnly(today).Before(dateOnly(c.NextAllowedDate))
}

// DaysUntilNextAllowed is the number of whole days the patient must still
// wait; zero once dispensation is allowed.
func (c *DispensationControl) DaysUntilNextAllowed(today time.Time) int {
	days := int(dateOnly(c.NextAllowedDate).Sub(dateOnly(today)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsOverdue reports whether the patient lapsed past the next-allowed date by
// more than the grace period. Informational only; never blocks.
func (c *DispensationControl) IsOverdue(today time.Time, graceDays int) bool {
	return dateOnly(today).After(dateOnly(c.NextAllowedDate).AddDate(0, 0, graceDays))
}

// CanBeReleasedEarly reports whether an early-release override may be
// granted: the control must be active, still blocking, and no release may
// have been authorized within the cooldown window. lastRelease is the most
// recent log's authorization time, nil when no release was ever granted.
func (c *DispensationControl) CanBeReleasedEarly(now time.Time, lastRelease *time.Time, cooldown time.Duration) bool {
	if !c.IsActive {
		return false
	}
	if c.CanDispense(now) {
		return false
	}
	if lastRelease != nil && now.Sub(*lastRelease) < cooldown {
		return false
	}
	return true
}

// Refresh records a new dispensation against the existing control, keeping
// its identity. currentInterval overrides the stored interval when positive.
func (c *DispensationControl) Refresh(today time.Time, intervalDays int) {
	if intervalDays > 0 {
		c.IntervalDaysUsed = intervalDays
	}
	c.LastDispensationDate = dateOnly(today)
	c.NextAllowedDate = dateOnly(today).AddDate(0, 0, c.IntervalDaysUsed)
}

// Release sets the next-allowed date to today so one dispensation may pass,
// and marks the record as early-released.
func (c *DispensationControl) Release(today time.Time) {
	c.NextAllowedDate = dateOnly(today)
	c.WasReleasedEarly = true
}

// EarlyReleaseLog is the append-only audit record of an interval override.
// Immutable once created.
type EarlyReleaseLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AuthorizedAt time.Time `gorm:"autoCreateTime;index"`

	DispensationControlID uuid.UUID `gorm:"column:dispensation_control_id;type:uuid;not null;index"`
	AuthorizedBy          uuid.UUID `gorm:"column:authorized_by;type:uuid;not null"`
	Justification         string    `gorm:"column:justification;type:text;not null"`
	DaysEarly             int       `gorm:"column:days_early;not null"`
	OriginalDate          time.Time `gorm:"column:original_date;type:date;not null"`
	ReleasedDate          time.Time `gorm:"column:released_date;type:date;not null"`
}

func (EarlyReleaseLog) TableName() string {
	return "pharmacy.early_release_logs"
}

// MedicationInterval is the per-medication interval policy a pharmacist
// configures. When absent or inactive, the type-based default from the
// interval_policies table applies on first dispensation.
type MedicationInterval struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	MedicationID          uuid.UUID `gorm:"column:medication_id;type:uuid;not null;uniqueIndex"`
	IntervalDays          int       `gorm:"column:interval_days;not null"`
	IsActive              bool      `gorm:"column:is_active;default:true"`
	RequiresJustification bool      `gorm:"column:requires_justification;default:false"`
	CreatedBy             uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (MedicationInterval) TableName() string {
	return "pharmacy.medication_intervals"
}

// IntervalPolicy is the type-keyed default interval table, seeded from
// configuration at migration so new medication types need no code change.
type IntervalPolicy struct {
	MedicationType string    `gorm:"column:medication_type;type:varchar(20);primaryKey"`
	IntervalDays   int       `gorm:"column:interval_days;not null"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (IntervalPolicy) TableName() string {
	return "pharmacy.interval_policies"
}
