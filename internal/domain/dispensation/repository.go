package dispensation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Dispensation) error
	Update(ctx context.Context, d *Dispensation) error
	CreateItem(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispensation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Dispensation, error)
	RecordMovement(ctx context.Context, m *InventoryMovement) error
}
