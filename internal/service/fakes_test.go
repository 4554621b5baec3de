package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaops/doseflow/internal/config"
	"github.com/pharmaops/doseflow/internal/domain"
	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/dispensation"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
	"github.com/pharmaops/doseflow/pkg/metrics"
)

// One shared collector: promauto registers on the default registry, and a
// second registration of the same metric names panics.
var testMetrics = metrics.NewCollector("doseflow_test")

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		DefaultIntervalDays:    30,
		ControlledIntervalDays: 30,
		HighCostIntervalDays:   90,
		OverdueGraceDays:       30,
		EarlyReleaseCooldown:   24 * time.Hour,
		MinJustificationLen:    10,
	}
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeControlRepo struct {
	controls  map[uuid.UUID]*control.DispensationControl
	intervals map[uuid.UUID]*control.MedicationInterval
	policies  map[string]*control.IntervalPolicy
	releases  []*control.EarlyReleaseLog

	created int
	updated int

	// lockedReadHook runs on every GetActiveForUpdate result, letting a
	// test model a concurrent writer landing before the lock is taken.
	lockedReadHook func(*control.DispensationControl)
}

func newFakeControlRepo() *fakeControlRepo {
	return &fakeControlRepo{
		controls:  make(map[uuid.UUID]*control.DispensationControl),
		intervals: make(map[uuid.UUID]*control.MedicationInterval),
		policies:  make(map[string]*control.IntervalPolicy),
	}
}

func (f *fakeControlRepo) GetByID(_ context.Context, id uuid.UUID) (*control.DispensationControl, error) {
	c, ok := f.controls[id]
	if !ok {
		return nil, control.ErrControlNotFound
	}
	return c, nil
}

func (f *fakeControlRepo) GetActive(_ context.Context, patientID, medicationID uuid.UUID) (*control.DispensationControl, error) {
	for _, c := range f.controls {
		if c.PatientID == patientID && c.MedicationID == medicationID && c.IsActive {
			return c, nil
		}
	}
	return nil, control.ErrControlNotFound
}

func (f *fakeControlRepo) GetActiveForUpdate(ctx context.Context, patientID, medicationID uuid.UUID) (*control.DispensationControl, error) {
	c, err := f.GetActive(ctx, patientID, medicationID)
	if err != nil {
		return nil, err
	}
	if f.lockedReadHook != nil {
		f.lockedReadHook(c)
	}
	return c, nil
}

func (f *fakeControlRepo) Create(_ context.Context, c *control.DispensationControl) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.controls[c.ID] = c
	f.created++
	return nil
}

func (f *fakeControlRepo) Update(_ context.Context, c *control.DispensationControl) error {
	f.controls[c.ID] = c
	f.updated++
	return nil
}

func (f *fakeControlRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	c, ok := f.controls[id]
	if !ok || !c.IsActive {
		return control.ErrControlNotFound
	}
	c.IsActive = false
	return nil
}

func (f *fakeControlRepo) ListActiveByPatient(_ context.Context, patientID uuid.UUID) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	for _, c := range f.controls {
		if c.PatientID == patientID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeControlRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ int) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	for _, c := range f.controls {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeControlRepo) ListUpcomingReleases(_ context.Context, from, until time.Time) ([]*control.DispensationControl, error) {
	var out []*control.DispensationControl
	for _, c := range f.controls {
		if c.IsActive && !c.NextAllowedDate.Before(from) && !c.NextAllowedDate.After(until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeControlRepo) AppendEarlyRelease(_ context.Context, log *control.EarlyReleaseLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.AuthorizedAt.IsZero() {
		log.AuthorizedAt = time.Now()
	}
	f.releases = append(f.releases, log)
	return nil
}

func (f *fakeControlRepo) LatestEarlyRelease(_ context.Context, controlID uuid.UUID) (*control.EarlyReleaseLog, error) {
	var latest *control.EarlyReleaseLog
	for _, l := range f.releases {
		if l.DispensationControlID != controlID {
			continue
		}
		if latest == nil || l.AuthorizedAt.After(latest.AuthorizedAt) {
			latest = l
		}
	}
	return latest, nil
}

func (f *fakeControlRepo) ListRecentEarlyReleases(_ context.Context, since time.Time, _ int) ([]*control.EarlyReleaseLog, error) {
	var out []*control.EarlyReleaseLog
	for _, l := range f.releases {
		if !l.AuthorizedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeControlRepo) GetMedicationInterval(_ context.Context, medicationID uuid.UUID) (*control.MedicationInterval, error) {
	mi, ok := f.intervals[medicationID]
	if !ok {
		return nil, control.ErrControlNotFound
	}
	return mi, nil
}

func (f *fakeControlRepo) SaveMedicationInterval(_ context.Context, mi *control.MedicationInterval) error {
	if mi.ID == uuid.Nil {
		mi.ID = uuid.New()
	}
	f.intervals[mi.MedicationID] = mi
	return nil
}

func (f *fakeControlRepo) GetPolicy(_ context.Context, medicationType string) (*control.IntervalPolicy, error) {
	p, ok := f.policies[medicationType]
	if !ok {
		return nil, control.ErrPolicyNotFound
	}
	return p, nil
}

type fakeMedicationRepo struct {
	meds    map[uuid.UUID]*medication.Medication
	configs map[uuid.UUID]*medication.DispensingConfig

	deductions int
}

func newFakeMedicationRepo() *fakeMedicationRepo {
	return &fakeMedicationRepo{
		meds:    make(map[uuid.UUID]*medication.Medication),
		configs: make(map[uuid.UUID]*medication.DispensingConfig),
	}
}

func (f *fakeMedicationRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	m, ok := f.meds[id]
	if !ok {
		return nil, medication.ErrMedicationNotFound
	}
	return m, nil
}

func (f *fakeMedicationRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*medication.Medication, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeMedicationRepo) DeductStock(_ context.Context, id uuid.UUID, quantity int) (int, error) {
	m, ok := f.meds[id]
	if !ok {
		return 0, medication.ErrMedicationNotFound
	}
	if m.CurrentStock < quantity {
		return 0, medication.ErrInsufficientStock
	}
	m.CurrentStock -= quantity
	f.deductions++
	return m.CurrentStock, nil
}

func (f *fakeMedicationRepo) GetActiveConfig(_ context.Context, medicationID uuid.UUID) (*medication.DispensingConfig, error) {
	cfg, ok := f.configs[medicationID]
	if !ok || !cfg.IsActive {
		return nil, medication.ErrConfigNotFound
	}
	return cfg, nil
}

func (f *fakeMedicationRepo) SaveConfig(_ context.Context, cfg *medication.DispensingConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	f.configs[cfg.MedicationID] = cfg
	return nil
}

func (f *fakeMedicationRepo) DeactivateConfig(_ context.Context, medicationID uuid.UUID) error {
	cfg, ok := f.configs[medicationID]
	if !ok || !cfg.IsActive {
		return medication.ErrConfigNotFound
	}
	cfg.IsActive = false
	return nil
}

func (f *fakeMedicationRepo) ListLowStock(_ context.Context) ([]*medication.Medication, error) {
	var out []*medication.Medication
	for _, m := range f.meds {
		if m.IsLowStock() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMedicationRepo) ListNearExpiry(_ context.Context) ([]*medication.Medication, error) {
	var out []*medication.Medication
	now := time.Now()
	for _, m := range f.meds {
		if m.IsNearExpiry(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{patients: make(map[uuid.UUID]*patient.Patient)}
}

func (f *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (f *fakePatientRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.patients[id]
	return ok, nil
}

type fakeDispensationRepo struct {
	dispensations map[uuid.UUID]*dispensation.Dispensation
	items         []*dispensation.Item
	movements     []*dispensation.InventoryMovement
}

func newFakeDispensationRepo() *fakeDispensationRepo {
	return &fakeDispensationRepo{dispensations: make(map[uuid.UUID]*dispensation.Dispensation)}
}

func (f *fakeDispensationRepo) Create(_ context.Context, d *dispensation.Dispensation) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.dispensations[d.ID] = d
	return nil
}

func (f *fakeDispensationRepo) Update(_ context.Context, d *dispensation.Dispensation) error {
	f.dispensations[d.ID] = d
	return nil
}

func (f *fakeDispensationRepo) CreateItem(_ context.Context, item *dispensation.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeDispensationRepo) GetByID(_ context.Context, id uuid.UUID) (*dispensation.Dispensation, error) {
	d, ok := f.dispensations[id]
	if !ok {
		return nil, dispensation.ErrDispensationNotFound
	}
	return d, nil
}

func (f *fakeDispensationRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _ int) ([]*dispensation.Dispensation, error) {
	var out []*dispensation.Dispensation
	for _, d := range f.dispensations {
		if d.PatientID == patientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDispensationRepo) RecordMovement(_ context.Context, m *dispensation.InventoryMovement) error {
	f.movements = append(f.movements, m)
	return nil
}

type fakeAuditRepo struct {
	entries []*domain.AuditLog
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}
