package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
)

type dispenseFixture struct {
	svc         *DispensationService
	tx          *fakeTx
	dispRepo    *fakeDispensationRepo
	controlRepo *fakeControlRepo
	medRepo     *fakeMedicationRepo
	patientRepo *fakePatientRepo
	patientID   uuid.UUID
	callerID    uuid.UUID
}

func newDispenseFixture(t *testing.T) *dispenseFixture {
	t.Helper()

	controlRepo := newFakeControlRepo()
	medRepo := newFakeMedicationRepo()
	patientRepo := newFakePatientRepo()
	dispRepo := newFakeDispensationRepo()
	tx := &fakeTx{}

	patientID := uuid.New()
	patientRepo.patients[patientID] = &patient.Patient{
		ID:     patientID,
		Status: patient.StatusActive,
	}

	auditSvc := NewAuditService(&fakeAuditRepo{}, testMetrics, zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	intervalSvc := NewIntervalService(controlRepo, medRepo, patientRepo, auditSvc, testPolicy(), testMetrics, zap.NewNop())
	intervalSvc.now = func() time.Time { return testDay }

	svc := NewDispensationService(
		tx, dispRepo, controlRepo, medRepo, patientRepo, intervalSvc, auditSvc, testPolicy(), testMetrics, zap.NewNop(),
	)
	svc.now = func() time.Time { return testDay }

	return &dispenseFixture{
		svc:         svc,
		tx:          tx,
		dispRepo:    dispRepo,
		controlRepo: controlRepo,
		medRepo:     medRepo,
		patientRepo: patientRepo,
		patientID:   patientID,
		callerID:    uuid.New(),
	}
}

func (f *dispenseFixture) addMedication(name string, stock int, unitCost string) uuid.UUID {
	id := uuid.New()
	cost := decimal.RequireFromString(unitCost)
	f.medRepo.meds[id] = &medication.Medication{
		ID:             id,
		CommercialName: name,
		Type:           medication.TypeBasic,
		CurrentStock:   stock,
		MinimumStock:   5,
		UnitCost:       &cost,
		IsActive:       true,
	}
	return id
}

func (f *dispenseFixture) configureInterval(medID uuid.UUID, days int) {
	f.controlRepo.intervals[medID] = &control.MedicationInterval{
		ID:           uuid.New(),
		MedicationID: medID,
		IntervalDays: days,
		IsActive:     true,
	}
}

func (f *dispenseFixture) addControl(medID uuid.UUID, lastOffset, intervalDays int) *control.DispensationControl {
	last := testDay.AddDate(0, 0, lastOffset).Truncate(24 * time.Hour)
	c := &control.DispensationControl{
		ID:                   uuid.New(),
		PatientID:            f.patientID,
		MedicationID:         medID,
		LastDispensationDate: last,
		NextAllowedDate:      last.AddDate(0, 0, intervalDays),
		IntervalDaysUsed:     intervalDays,
		IsActive:             true,
	}
	f.controlRepo.controls[c.ID] = c
	return c
}

func (f *dispenseFixture) dispense(cmd *DispenseCommand) (*DispenseResult, error) {
	return f.svc.Dispense(context.Background(), cmd, f.callerID, "attendant", "10.0.0.1")
}

func TestDispenseFirstTimeCreatesControl(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 20, "12.50")
	f.configureInterval(medID, 30)

	result, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}

	if result.IntervalControlsCreated != 1 {
		t.Errorf("controls created = %d, want 1", result.IntervalControlsCreated)
	}
	if want := decimal.RequireFromString("25.00"); !result.TotalCost.Equal(want) {
		t.Errorf("TotalCost = %s, want %s", result.TotalCost, want)
	}
	if f.medRepo.meds[medID].CurrentStock != 18 {
		t.Errorf("stock = %d, want 18", f.medRepo.meds[medID].CurrentStock)
	}
	if len(f.dispRepo.movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(f.dispRepo.movements))
	}
	if m := f.dispRepo.movements[0]; m.PreviousStock != 20 || m.NewStock != 18 {
		t.Errorf("movement = %+v", m)
	}

	ctrl, err := f.controlRepo.GetActive(context.Background(), f.patientID, medID)
	if err != nil {
		t.Fatalf("expected a control: %v", err)
	}
	wantNext := testDay.Truncate(24 * time.Hour).AddDate(0, 0, 30)
	if !ctrl.NextAllowedDate.Equal(wantNext) {
		t.Errorf("NextAllowedDate = %v, want %v", ctrl.NextAllowedDate, wantNext)
	}
	if ctrl.IntervalDaysUsed != 30 {
		t.Errorf("IntervalDaysUsed = %d, want 30", ctrl.IntervalDaysUsed)
	}
}

func TestDispenseFirstTimeUsesTypeDefaultPolicy(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Clozapina 100", 20, "80.00")
	f.medRepo.meds[medID].Type = medication.TypeHighCost
	f.configureInterval(medID, 0)
	// Configured interval is unusable (zero days); fall back to the policy
	// table entry for the medication's type.
	f.controlRepo.intervals[medID].IntervalDays = 0
	f.controlRepo.policies[string(medication.TypeHighCost)] = &control.IntervalPolicy{
		MedicationType: string(medication.TypeHighCost),
		IntervalDays:   90,
	}

	result, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if result.IntervalControlsCreated != 1 {
		t.Fatalf("controls created = %d, want 1", result.IntervalControlsCreated)
	}

	ctrl, _ := f.controlRepo.GetActive(context.Background(), f.patientID, medID)
	if ctrl.IntervalDaysUsed != 90 {
		t.Errorf("IntervalDaysUsed = %d, want 90 from the type policy", ctrl.IntervalDaysUsed)
	}
}

func TestDispenseUnconfiguredFirstTimeBlocked(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 20, "12.50")

	_, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})

	var blocked *BatchBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BatchBlockedError", err)
	}
	if !blocked.RequiresConfiguration {
		t.Error("expected RequiresConfiguration")
	}
	if blocked.RequiresAuthorization {
		t.Error("an unconfigured medication cannot be force-released")
	}
	if len(blocked.Blocked) != 1 || blocked.Blocked[0].CanForceRelease {
		t.Errorf("blocked = %+v", blocked.Blocked)
	}

	// Force release cannot bypass a missing configuration.
	_, err = f.dispense(&DispenseCommand{
		PatientID:          f.patientID,
		Items:              []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
		ForceRelease:       true,
		ForceJustification: "forcing does not help without a policy",
	})
	if !errors.As(err, &blocked) {
		t.Fatalf("forced err = %v, want BatchBlockedError", err)
	}

	if f.medRepo.meds[medID].CurrentStock != 20 {
		t.Error("stock must be untouched")
	}
	if len(f.dispRepo.dispensations) != 0 || f.controlRepo.created != 0 {
		t.Error("no records may be written for a blocked batch")
	}
}

func TestDispenseBlockedByInterval(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 20, "12.50")
	f.configureInterval(medID, 30)
	f.addControl(medID, -15, 30)

	_, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})

	var blocked *BatchBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BatchBlockedError", err)
	}
	if !errors.Is(err, control.ErrIntervalBlocked) {
		t.Error("BatchBlockedError must match ErrIntervalBlocked")
	}
	if !blocked.RequiresAuthorization {
		t.Error("a blocked configured medication can be force-released")
	}
	b := blocked.Blocked[0]
	if b.DaysRemaining != 15 || !b.CanForceRelease {
		t.Errorf("blocked entry = %+v", b)
	}
}

func TestDispenseBatchIsAtomicWhenOneBlocked(t *testing.T) {
	f := newDispenseFixture(t)

	okMed1 := f.addMedication("Dipirona 500", 30, "3.00")
	f.configureInterval(okMed1, 30)
	okMed2 := f.addMedication("Ibuprofeno 400", 30, "5.00")
	f.configureInterval(okMed2, 30)
	blockedMed := f.addMedication("Clonazepam 2", 30, "8.00")
	f.configureInterval(blockedMed, 30)
	blockedCtrl := f.addControl(blockedMed, -10, 30)

	_, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items: []DispenseItemCommand{
			{MedicationID: okMed1, Quantity: 1},
			{MedicationID: okMed2, Quantity: 1},
			{MedicationID: blockedMed, Quantity: 1},
		},
	})

	var blocked *BatchBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BatchBlockedError", err)
	}
	if len(blocked.Blocked) != 1 || blocked.Blocked[0].MedicationID != blockedMed {
		t.Errorf("blocked = %+v", blocked.Blocked)
	}

	// Whole batch rejected: nothing dispensed, nothing deducted, ledger
	// untouched.
	for _, id := range []uuid.UUID{okMed1, okMed2, blockedMed} {
		if f.medRepo.meds[id].CurrentStock != 30 {
			t.Errorf("stock for %s changed", f.medRepo.meds[id].CommercialName)
		}
	}
	if len(f.dispRepo.dispensations) != 0 || len(f.dispRepo.items) != 0 {
		t.Error("no dispensation rows may exist")
	}
	if f.controlRepo.created != 0 || f.controlRepo.updated != 0 {
		t.Error("no control may be mutated")
	}
	if f.tx.calls != 0 {
		t.Error("transaction must not start for a blocked batch")
	}
	if blockedCtrl.WasReleasedEarly {
		t.Error("blocked control must not be released")
	}
}

func TestDispenseRechecksIntervalUnderLock(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Clonazepam 2", 20, "8.00")
	f.configureInterval(medID, 30)
	f.addControl(medID, -30, 30) // past its interval at classification time

	// A concurrent dispensation refreshes the control between the unlocked
	// classification read and the locked write-pass read. The batch must be
	// rejected, not committed on the stale decision.
	f.controlRepo.lockedReadHook = func(c *control.DispensationControl) {
		c.Refresh(testDay, 0)
	}

	_, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})

	var blocked *BatchBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want BatchBlockedError", err)
	}
	if !blocked.RequiresAuthorization {
		t.Error("a lock-time block on a dated control can be force-released")
	}
	if f.medRepo.deductions != 0 {
		t.Errorf("stock deductions = %d, want 0", f.medRepo.deductions)
	}
	if len(f.controlRepo.releases) != 0 {
		t.Error("no early release may be logged")
	}
	if f.controlRepo.updated != 0 {
		t.Error("the control must not be rewritten")
	}
}

func TestDispenseForceRelease(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Clonazepam 2", 20, "8.00")
	f.configureInterval(medID, 30)
	ctrl := f.addControl(medID, -15, 30)

	result, err := f.svc.Dispense(context.Background(), &DispenseCommand{
		PatientID:          f.patientID,
		Items:              []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
		ForceRelease:       true,
		ForceJustification: "patient hospitalized, treatment cannot pause",
	}, f.callerID, "pharmacist", "10.0.0.1")
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}

	if result.EarlyReleases != 1 {
		t.Errorf("EarlyReleases = %d, want 1", result.EarlyReleases)
	}
	if result.IntervalControlsCreated != 0 {
		t.Errorf("controls created = %d, want 0 (refresh in place)", result.IntervalControlsCreated)
	}

	if len(f.controlRepo.releases) != 1 {
		t.Fatalf("release logs = %d, want 1", len(f.controlRepo.releases))
	}
	if log := f.controlRepo.releases[0]; log.DaysEarly != 15 {
		t.Errorf("DaysEarly = %d, want 15", log.DaysEarly)
	}

	if !ctrl.WasReleasedEarly {
		t.Error("control must be flagged as released early")
	}
	wantNext := testDay.Truncate(24 * time.Hour).AddDate(0, 0, 30)
	if !ctrl.NextAllowedDate.Equal(wantNext) {
		t.Errorf("NextAllowedDate = %v, want %v", ctrl.NextAllowedDate, wantNext)
	}
	if f.medRepo.meds[medID].CurrentStock != 19 {
		t.Errorf("stock = %d, want 19", f.medRepo.meds[medID].CurrentStock)
	}
}

func TestDispenseForceReleaseNeedsJustification(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Clonazepam 2", 20, "8.00")
	f.configureInterval(medID, 30)
	f.addControl(medID, -15, 30)

	_, err := f.dispense(&DispenseCommand{
		PatientID:          f.patientID,
		Items:              []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
		ForceRelease:       true,
		ForceJustification: "short",
	})
	if !errors.Is(err, control.ErrJustificationTooShort) {
		t.Errorf("err = %v, want ErrJustificationTooShort", err)
	}
}

func TestDispenseReleasedControlRefreshesInPlace(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 20, "12.50")
	f.configureInterval(medID, 30)
	ctrl := f.addControl(medID, -30, 30)
	originalID := ctrl.ID

	result, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if result.IntervalControlsCreated != 0 {
		t.Errorf("controls created = %d, want 0", result.IntervalControlsCreated)
	}
	if len(f.controlRepo.controls) != 1 {
		t.Fatalf("control rows = %d, want 1", len(f.controlRepo.controls))
	}

	refreshed := f.controlRepo.controls[originalID]
	wantLast := testDay.Truncate(24 * time.Hour)
	if !refreshed.LastDispensationDate.Equal(wantLast) {
		t.Errorf("LastDispensationDate = %v, want %v", refreshed.LastDispensationDate, wantLast)
	}
	if !refreshed.NextAllowedDate.Equal(wantLast.AddDate(0, 0, 30)) {
		t.Errorf("NextAllowedDate = %v", refreshed.NextAllowedDate)
	}
}

func TestDispenseInsufficientStock(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 1, "12.50")
	f.configureInterval(medID, 30)

	_, err := f.dispense(&DispenseCommand{
		PatientID: f.patientID,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 5}},
	})
	if !errors.Is(err, medication.ErrInsufficientStock) {
		t.Errorf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestDispenseInactivePatient(t *testing.T) {
	f := newDispenseFixture(t)
	medID := f.addMedication("Amoxil 250", 20, "12.50")
	f.configureInterval(medID, 30)

	inactive := uuid.New()
	f.patientRepo.patients[inactive] = &patient.Patient{
		ID:     inactive,
		Status: patient.StatusInactive,
	}

	_, err := f.dispense(&DispenseCommand{
		PatientID: inactive,
		Items:     []DispenseItemCommand{{MedicationID: medID, Quantity: 1}},
	})
	if !errors.Is(err, patient.ErrPatientInactive) {
		t.Errorf("err = %v, want ErrPatientInactive", err)
	}
}

func TestDispenseEmptyBatch(t *testing.T) {
	f := newDispenseFixture(t)

	_, err := f.dispense(&DispenseCommand{PatientID: f.patientID})
	var validErr *ValidationError
	if !errors.As(err, &validErr) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}
