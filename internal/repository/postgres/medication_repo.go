package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pharmaops/doseflow/internal/domain/medication"
)

type MedicationRepo struct {
	db *gorm.DB
}

func NewMedicationRepo(db *gorm.DB) *MedicationRepo {
	return &MedicationRepo{db: db}
}

func (r *MedicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*medication.Medication, error) {
	return r.get(handle(ctx, r.db), id)
}

func (r *MedicationRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*medication.Medication, error) {
	db := handle(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.get(db, id)
}

func (r *MedicationRepo) get(db *gorm.DB, id uuid.UUID) (*medication.Medication, error) {
	var m medication.Medication
	err := db.First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, medication.ErrMedicationNotFound
		}
		return nil, fmt.Errorf("querying medication: %w", err)
	}
	return &m, nil
}

// DeductStock decrements the stock atomically. The guard in the WHERE clause
// makes oversell impossible even without a prior row lock.
func (r *MedicationRepo) DeductStock(ctx context.Context, id uuid.UUID, quantity int) (int, error) {
	var m medication.Medication
	res := handle(ctx, r.db).
		Model(&m).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "current_stock"}}}).
		Where("id = ? AND current_stock >= ?", id, quantity).
		UpdateColumn("current_stock", gorm.Expr("current_stock - ?", quantity))
	if res.Error != nil {
		return 0, fmt.Errorf("deducting stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing medication from an insufficient balance.
		if _, err := r.get(handle(ctx, r.db), id); err != nil {
			return 0, err
		}
		return 0, medication.ErrInsufficientStock
	}
	return m.CurrentStock, nil
}

func (r *MedicationRepo) GetActiveConfig(ctx context.Context, medicationID uuid.UUID) (*medication.DispensingConfig, error) {
	var cfg medication.DispensingConfig
	err := handle(ctx, r.db).
		Where("medication_id = ? AND is_active", medicationID).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, medication.ErrConfigNotFound
		}
		return nil, fmt.Errorf("querying dispensing config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig deactivates any current config and inserts the new one, keeping
// the full configuration history.
func (r *MedicationRepo) SaveConfig(ctx context.Context, cfg *medication.DispensingConfig) error {
	return handle(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&medication.DispensingConfig{}).
			Where("medication_id = ? AND is_active", cfg.MedicationID).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("deactivating previous config: %w", err)
		}
		return tx.Create(cfg).Error
	})
}

func (r *MedicationRepo) DeactivateConfig(ctx context.Context, medicationID uuid.UUID) error {
	res := handle(ctx, r.db).
		Model(&medication.DispensingConfig{}).
		Where("medication_id = ? AND is_active", medicationID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivating config: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return medication.ErrConfigNotFound
	}
	return nil
}

func (r *MedicationRepo) ListLowStock(ctx context.Context) ([]*medication.Medication, error) {
	var out []*medication.Medication
	err := handle(ctx, r.db).
		Where("is_active AND current_stock <= minimum_stock").
		Order("current_stock ASC").
		Find(&out).Error
	return out, err
}

func (r *MedicationRepo) ListNearExpiry(ctx context.Context) ([]*medication.Medication, error) {
	var out []*medication.Medication
	cutoff := time.Now().AddDate(0, 0, 30)
	err := handle(ctx, r.db).
		Where("is_active AND expiry_date IS NOT NULL AND expiry_date <= ?", cutoff).
		Order("expiry_date ASC").
		Find(&out).Error
	return out, err
}
