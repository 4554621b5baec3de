package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	// GetByIDForUpdate locks the medication row for the duration of the
	// surrounding transaction. Used by the dispensation orchestrator so
	// concurrent stock deductions serialize.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Medication, error)
	// DeductStock fails with ErrInsufficientStock when the medication does
	// not have quantity units available.
	DeductStock(ctx context.Context, id uuid.UUID, quantity int) (newStock int, err error)

	GetActiveConfig(ctx context.Context, medicationID uuid.UUID) (*DispensingConfig, error)
	SaveConfig(ctx context.Context, cfg *DispensingConfig) error
	DeactivateConfig(ctx context.Context, medicationID uuid.UUID) error

	ListLowStock(ctx context.Context) ([]*Medication, error)
	ListNearExpiry(ctx context.Context) ([]*Medication, error)
}
