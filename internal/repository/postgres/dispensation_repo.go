package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmaops/doseflow/internal/domain/dispensation"
)

type DispensationRepo struct {
	db *gorm.DB
}

func NewDispensationRepo(db *gorm.DB) *DispensationRepo {
	return &DispensationRepo{db: db}
}

func (r *DispensationRepo) Create(ctx context.Context, d *dispensation.Dispensation) error {
	return handle(ctx, r.db).Omit("Items").Create(d).Error
}

func (r *DispensationRepo) Update(ctx context.Context, d *dispensation.Dispensation) error {
	return handle(ctx, r.db).Omit("Items").Save(d).Error
}

func (r *DispensationRepo) CreateItem(ctx context.Context, item *dispensation.Item) error {
	return handle(ctx, r.db).Create(item).Error
}

func (r *DispensationRepo) GetByID(ctx context.Context, id uuid.UUID) (*dispensation.Dispensation, error) {
	var d dispensation.Dispensation
	err := handle(ctx, r.db).Preload("Items").First(&d, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dispensation.ErrDispensationNotFound
		}
		return nil, fmt.Errorf("querying dispensation: %w", err)
	}
	return &d, nil
}

func (r *DispensationRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*dispensation.Dispensation, error) {
	var out []*dispensation.Dispensation
	err := handle(ctx, r.db).
		Preload("Items").
		Where("patient_id = ?", patientID).
		Order("dispensed_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *DispensationRepo) RecordMovement(ctx context.Context, m *dispensation.InventoryMovement) error {
	return handle(ctx, r.db).Create(m).Error
}
