package control

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*DispensationControl, error)
	GetActive(ctx context.Context, patientID, medicationID uuid.UUID) (*DispensationControl, error)
	// GetActiveForUpdate locks the active control row for the surrounding
	// transaction so check-then-act on one (patient, medication) pair is
	// atomic relative to other writers.
	GetActiveForUpdate(ctx context.Context, patientID, medicationID uuid.UUID) (*DispensationControl, error)
	Create(ctx context.Context, c *DispensationControl) error
	Update(ctx context.Context, c *DispensationControl) error
	Deactivate(ctx context.Context, id uuid.UUID) error

	ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*DispensationControl, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*DispensationControl, error)
	ListUpcomingReleases(ctx context.Context, from, until time.Time) ([]*DispensationControl, error)

	AppendEarlyRelease(ctx context.Context, log *EarlyReleaseLog) error
	LatestEarlyRelease(ctx context.Context, controlID uuid.UUID) (*EarlyReleaseLog, error)
	ListRecentEarlyReleases(ctx context.Context, since time.Time, limit int) ([]*EarlyReleaseLog, error)

	GetMedicationInterval(ctx context.Context, medicationID uuid.UUID) (*MedicationInterval, error)
	SaveMedicationInterval(ctx context.Context, mi *MedicationInterval) error
	GetPolicy(ctx context.Context, medicationType string) (*IntervalPolicy, error)
}
