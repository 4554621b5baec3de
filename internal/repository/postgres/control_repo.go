package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pharmaops/doseflow/internal/domain/control"
)

type ControlRepo struct {
	db *gorm.DB
}

func NewControlRepo(db *gorm.DB) *ControlRepo {
	return &ControlRepo{db: db}
}

func (r *ControlRepo) GetByID(ctx context.Context, id uuid.UUID) (*control.DispensationControl, error) {
	var c control.DispensationControl
	err := handle(ctx, r.db).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, control.ErrControlNotFound
		}
		return nil, fmt.Errorf("querying control: %w", err)
	}
	return &c, nil
}

func (r *ControlRepo) GetActive(ctx context.Context, patientID, medicationID uuid.UUID) (*control.DispensationControl, error) {
	return r.getActive(handle(ctx, r.db), patientID, medicationID)
}

func (r *ControlRepo) GetActiveForUpdate(ctx context.Context, patientID, medicationID uuid.UUID) (*control.DispensationControl, error) {
	db := handle(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.getActive(db, patientID, medicationID)
}

func (r *ControlRepo) getActive(db *gorm.DB, patientID, medicationID uuid.UUID) (*control.DispensationControl, error) {
	var c control.DispensationControl
	err := db.
		Where("patient_id = ? AND medication_id = ? AND is_active", patientID, medicationID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, control.ErrControlNotFound
		}
		return nil, fmt.Errorf("querying active control: %w", err)
	}
	return &c, nil
}

func (r *ControlRepo) Create(ctx context.Context, c *control.DispensationControl) error {
	return handle(ctx, r.db).Create(c).Error
}

func (r *ControlRepo) Update(ctx context.Context, c *control.DispensationControl) error {
	return handle(ctx, r.db).Save(c).Error
}

func (r *ControlRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := handle(ctx, r.db).
		Model(&control.DispensationControl{}).
		Where("id = ? AND is_active", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivating control: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return control.ErrControlNotFound
	}
	return nil
}

func (r *ControlRepo) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	err := handle(ctx, r.db).
		Where("patient_id = ? AND is_active", patientID).
		Order("next_allowed_date ASC").
		Find(&out).Error
	return out, err
}

func (r *ControlRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	err := handle(ctx, r.db).
		Where("patient_id = ?", patientID).
		Order("last_dispensation_date DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *ControlRepo) ListUpcomingReleases(ctx context.Context, from, until time.Time) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	err := handle(ctx, r.db).
		Where("is_active AND next_allowed_date >= ? AND next_allowed_date <= ?", from, until).
		Order("next_allowed_date ASC").
		Find(&out).Error
	return out, err
}

func (r *ControlRepo) AppendEarlyRelease(ctx context.Context, log *control.EarlyReleaseLog) error {
	return handle(ctx, r.db).Create(log).Error
}

// LatestEarlyRelease returns nil without error when the control was never
// released early.
func (r *ControlRepo) LatestEarlyRelease(ctx context.Context, controlID uuid.UUID) (*control.EarlyReleaseLog, error) {
	var log control.EarlyReleaseLog
	err := handle(ctx, r.db).
		Where("dispensation_control_id = ?", controlID).
		Order("authorized_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying early releases: %w", err)
	}
	return &log, nil
}

func (r *ControlRepo) ListRecentEarlyReleases(ctx context.Context, since time.Time, limit int) ([]*control.EarlyReleaseLog, error) {
	var out []*control.EarlyReleaseLog
	err := handle(ctx, r.db).
		Where("authorized_at >= ?", since).
		Order("authorized_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *ControlRepo) GetMedicationInterval(ctx context.Context, medicationID uuid.UUID) (*control.MedicationInterval, error) {
	var mi control.MedicationInterval
	err := handle(ctx, r.db).First(&mi, "medication_id = ?", medicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, control.ErrControlNotFound
		}
		return nil, fmt.Errorf("querying medication interval: %w", err)
	}
	return &mi, nil
}

func (r *ControlRepo) SaveMedicationInterval(ctx context.Context, mi *control.MedicationInterval) error {
	return handle(ctx, r.db).Save(mi).Error
}

func (r *ControlRepo) GetPolicy(ctx context.Context, medicationType string) (*control.IntervalPolicy, error) {
	var p control.IntervalPolicy
	err := handle(ctx, r.db).First(&p, "medication_type = ?", medicationType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, control.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("querying interval policy: %w", err)
	}
	return &p, nil
}
