package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByID retrieves a patient by primary key. Returns ErrPatientNotFound if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Exists checks the patient without fetching the full record.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
