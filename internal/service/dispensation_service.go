package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/config"
	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/dispensation"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
	"github.com/pharmaops/doseflow/pkg/metrics"
)

// TxRunner executes fn inside a database transaction. The transactional
// handle travels in the context fn receives, so repositories called with
// that context participate in the same transaction.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DispensationService runs the batch dispensation pipeline. A batch is
// atomic: if any medication is blocked, out of stock, or fails to persist,
// nothing is dispensed.
type DispensationService struct {
	tx          TxRunner
	dispRepo    dispensation.Repository
	controlRepo control.Repository
	medRepo     medication.Repository
	patientRepo patient.Repository
	intervalSvc *IntervalService
	auditSvc    *AuditService
	policy      config.PolicyConfig
	metrics     *metrics.Collector
	log         *zap.Logger

	now func() time.Time
}

func NewDispensationService(
	tx TxRunner,
	dispRepo dispensation.Repository,
	controlRepo control.Repository,
	medRepo medication.Repository,
	patientRepo patient.Repository,
	intervalSvc *IntervalService,
	auditSvc *AuditService,
	policy config.PolicyConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *DispensationService {
	return &DispensationService{
		tx:          tx,
		dispRepo:    dispRepo,
		controlRepo: controlRepo,
		medRepo:     medRepo,
		patientRepo: patientRepo,
		intervalSvc: intervalSvc,
		auditSvc:    auditSvc,
		policy:      policy,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

type DispenseItemCommand struct {
	MedicationID uuid.UUID
	Quantity     int
	Observations string

	// Optional prescription parameters, recorded on the item when present.
	PrescribedDose  *decimal.Decimal
	PrescribedUnit  string
	FrequencyPerDay *int
	TreatmentDays   *int
}

type DispenseCommand struct {
	PatientID           uuid.UUID
	Items               []DispenseItemCommand
	GeneralObservations string
	ForceRelease        bool
	ForceJustification  string
}

// BlockedMedication explains why one medication in a batch cannot be
// dispensed today.
type BlockedMedication struct {
	MedicationID          uuid.UUID  `json:"medication_id"`
	Name                  string     `json:"name"`
	Reason                string     `json:"reason"`
	DaysRemaining         int        `json:"days_remaining"`
	NextAllowedDate       *time.Time `json:"next_allowed_date,omitempty"`
	ControlID             *uuid.UUID `json:"control_id,omitempty"`
	IntervalDays          int        `json:"interval_days,omitempty"`
	CanForceRelease       bool       `json:"can_force_release"`
	RequiresConfiguration bool       `json:"requires_configuration,omitempty"`
	IsFirstDispensation   bool       `json:"is_first_dispensation,omitempty"`
}

// BatchBlockedError rejects a whole batch. It carries every blocking
// medication so the caller can offer an override where one is possible.
type BatchBlockedError struct {
	Blocked               []BlockedMedication
	RequiresAuthorization bool
	RequiresConfiguration bool
}

func (e *BatchBlockedError) Error() string {
	return fmt.Sprintf("dispensation blocked for %d medication(s)", len(e.Blocked))
}

func (e *BatchBlockedError) Is(target error) bool {
	return target == control.ErrIntervalBlocked
}

type DispenseResult struct {
	DispensationID          uuid.UUID       `json:"dispensation_id"`
	TotalCost               decimal.Decimal `json:"total_cost"`
	ItemCount               int             `json:"item_count"`
	IntervalControlsCreated int             `json:"interval_controls_created"`
	EarlyReleases           int             `json:"early_releases"`
	ForceRelease            bool            `json:"force_release"`
}

// Dispense processes a batch of medications for one patient with interval
// gating applied to every item. All-or-nothing: the classification pass
// rejects the batch before any write, and the write pass runs in a single
// transaction with the affected rows locked.
func (s *DispensationService) Dispense(ctx context.Context, cmd *DispenseCommand, callerID uuid.UUID, callerRole string, ip string) (*DispenseResult, error) {
	if len(cmd.Items) == 0 {
		return nil, &ValidationError{Fields: []string{"at least one medication is required"}}
	}
	for i, item := range cmd.Items {
		if item.Quantity < 1 {
			return nil, &ValidationError{Fields: []string{fmt.Sprintf("items[%d].quantity must be at least 1", i)}}
		}
	}
	if cmd.ForceRelease && len(strings.TrimSpace(cmd.ForceJustification)) < s.policy.MinJustificationLen {
		return nil, control.ErrJustificationTooShort
	}

	pat, err := s.patientRepo.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, err
	}
	if !pat.IsActive() {
		return nil, patient.ErrPatientInactive
	}

	today := s.now()

	blocked, err := s.classify(ctx, cmd, today)
	if err != nil {
		return nil, err
	}

	if len(blocked) > 0 && !cmd.ForceRelease {
		s.metrics.IntervalBlocksTotal.Add(float64(len(blocked)))
		return nil, batchBlockedError(blocked)
	}
	if cmd.ForceRelease {
		var cannotForce []BlockedMedication
		for _, b := range blocked {
			if !b.CanForceRelease {
				cannotForce = append(cannotForce, b)
			}
		}
		if len(cannotForce) > 0 {
			s.metrics.IntervalBlocksTotal.Add(float64(len(cannotForce)))
			return nil, batchBlockedError(cannotForce)
		}
	}

	forcedControls := make(map[uuid.UUID]bool, len(blocked))
	for _, b := range blocked {
		if b.ControlID != nil {
			forcedControls[*b.ControlID] = true
		}
	}

	var result *DispenseResult
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		result, err = s.dispense(txCtx, cmd, forcedControls, callerID, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DispensationsTotal.Inc()
	if result.EarlyReleases > 0 {
		s.metrics.EarlyReleasesTotal.Add(float64(result.EarlyReleases))
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "dispensation", ResourceID: result.DispensationID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(
			`{"patient_id":%q,"items":%d,"controls_created":%d,"early_releases":%d,"force_release":%t}`,
			cmd.PatientID, result.ItemCount, result.IntervalControlsCreated, result.EarlyReleases, cmd.ForceRelease,
		),
	})

	s.log.Info("dispensation completed",
		zap.String("dispensation_id", result.DispensationID.String()),
		zap.String("patient_id", cmd.PatientID.String()),
		zap.Int("items", result.ItemCount),
		zap.Int("controls_created", result.IntervalControlsCreated),
		zap.Int("early_releases", result.EarlyReleases),
	)

	return result, nil
}

// classify checks every item against the interval ledger without writing
// anything. Every medication is gated: a pair with an active control must be
// past its interval, and a pair with no control needs an enabled interval
// policy before its first dispensation.
func (s *DispensationService) classify(ctx context.Context, cmd *DispenseCommand, today time.Time) ([]BlockedMedication, error) {
	var blocked []BlockedMedication

	for _, item := range cmd.Items {
		med, err := s.medRepo.GetByID(ctx, item.MedicationID)
		if err != nil {
			return nil, err
		}

		ctrl, err := s.controlRepo.GetActive(ctx, cmd.PatientID, med.ID)
		switch {
		case err == nil:
			if !ctrl.CanDispense(today) {
				next := ctrl.NextAllowedDate
				blocked = append(blocked, BlockedMedication{
					MedicationID:    med.ID,
					Name:            med.CommercialName,
					Reason:          "within dispensation interval",
					DaysRemaining:   ctrl.DaysUntilNextAllowed(today),
					NextAllowedDate: &next,
					ControlID:       &ctrl.ID,
					IntervalDays:    ctrl.IntervalDaysUsed,
					CanForceRelease: true,
				})
			}
		case errors.Is(err, control.ErrControlNotFound):
			if !s.intervalSvc.hasIntervalPolicy(ctx, med.ID) {
				blocked = append(blocked, BlockedMedication{
					MedicationID:          med.ID,
					Name:                  med.CommercialName,
					Reason:                "interval policy not configured",
					CanForceRelease:       false,
					RequiresConfiguration: true,
					IsFirstDispensation:   true,
				})
			}
		default:
			return nil, fmt.Errorf("loading control: %w", err)
		}
	}

	return blocked, nil
}

// dispense performs the write pass. Must run inside a transaction: it locks
// medication and control rows, deducts stock, and mutates the ledger.
func (s *DispensationService) dispense(ctx context.Context, cmd *DispenseCommand, forcedControls map[uuid.UUID]bool, callerID uuid.UUID, today time.Time) (*DispenseResult, error) {
	disp := &dispensation.Dispensation{
		PatientID:    cmd.PatientID,
		DispenserID:  callerID,
		DispensedAt:  today,
		Status:       dispensation.StatusCompleted,
		Observations: cmd.GeneralObservations,
	}
	if err := s.dispRepo.Create(ctx, disp); err != nil {
		return nil, fmt.Errorf("creating dispensation: %w", err)
	}

	totalCost := decimal.Zero
	controlsCreated := 0
	earlyReleases := 0

	for _, item := range cmd.Items {
		med, err := s.medRepo.GetByIDForUpdate(ctx, item.MedicationID)
		if err != nil {
			return nil, err
		}

		unitCost := decimal.Zero
		if med.UnitCost != nil {
			unitCost = *med.UnitCost
		}
		itemCost := unitCost.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totalCost = totalCost.Add(itemCost)

		dispItem := &dispensation.Item{
			DispensationID:    disp.ID,
			MedicationID:      med.ID,
			QuantityDispensed: item.Quantity,
			UnitCost:          unitCost,
			TotalCost:         itemCost,
			Observations:      item.Observations,
			PrescribedDose:    item.PrescribedDose,
			PrescribedUnit:    item.PrescribedUnit,
			FrequencyPerDay:   item.FrequencyPerDay,
			TreatmentDays:     item.TreatmentDays,
		}
		if err := s.dispRepo.CreateItem(ctx, dispItem); err != nil {
			return nil, fmt.Errorf("creating dispensation item: %w", err)
		}

		created, released, err := s.applyIntervalControl(ctx, cmd, med, dispItem, forcedControls, callerID, today)
		if err != nil {
			return nil, err
		}
		if created {
			controlsCreated++
		}
		if released {
			earlyReleases++
		}

		previousStock := med.CurrentStock
		newStock, err := s.medRepo.DeductStock(ctx, med.ID, item.Quantity)
		if err != nil {
			if errors.Is(err, medication.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: %s", medication.ErrInsufficientStock, med.CommercialName)
			}
			return nil, fmt.Errorf("deducting stock: %w", err)
		}
		s.metrics.StockDeductionsTotal.Inc()

		movement := &dispensation.InventoryMovement{
			MedicationID:  med.ID,
			UserID:        callerID,
			Type:          dispensation.MovementExit,
			Quantity:      item.Quantity,
			PreviousStock: previousStock,
			NewStock:      newStock,
			Reason:        fmt.Sprintf("dispensation %s", disp.ID),
			ReferenceID:   &disp.ID,
			ReferenceType: "dispensation",
		}
		if err := s.dispRepo.RecordMovement(ctx, movement); err != nil {
			return nil, fmt.Errorf("recording stock movement: %w", err)
		}
	}

	disp.TotalCost = totalCost
	if err := s.dispRepo.Update(ctx, disp); err != nil {
		return nil, fmt.Errorf("updating dispensation total: %w", err)
	}

	return &DispenseResult{
		DispensationID:          disp.ID,
		TotalCost:               totalCost,
		ItemCount:               len(cmd.Items),
		IntervalControlsCreated: controlsCreated,
		EarlyReleases:           earlyReleases,
		ForceRelease:            cmd.ForceRelease,
	}, nil
}

// applyIntervalControl refreshes the pair's active control or creates one,
// logging the early release first when this item was force-released.
func (s *DispensationService) applyIntervalControl(
	ctx context.Context,
	cmd *DispenseCommand,
	med *medication.Medication,
	dispItem *dispensation.Item,
	forcedControls map[uuid.UUID]bool,
	callerID uuid.UUID,
	today time.Time,
) (created, released bool, err error) {
	ctrl, err := s.controlRepo.GetActiveForUpdate(ctx, cmd.PatientID, med.ID)
	switch {
	case err == nil:
		forced := cmd.ForceRelease && forcedControls[ctrl.ID]

		// Classification ran without a lock; a concurrent dispensation
		// may have refreshed this control since. Re-check under the row
		// lock and roll the batch back if the pair is now blocked.
		if !forced && !ctrl.CanDispense(today) {
			next := ctrl.NextAllowedDate
			return false, false, batchBlockedError([]BlockedMedication{{
				MedicationID:    med.ID,
				Name:            med.CommercialName,
				Reason:          "within dispensation interval",
				DaysRemaining:   ctrl.DaysUntilNextAllowed(today),
				NextAllowedDate: &next,
				ControlID:       &ctrl.ID,
				IntervalDays:    ctrl.IntervalDaysUsed,
				CanForceRelease: true,
			}})
		}

		if forced {
			entry := &control.EarlyReleaseLog{
				DispensationControlID: ctrl.ID,
				AuthorizedBy:          callerID,
				Justification:         strings.TrimSpace(cmd.ForceJustification),
				DaysEarly:             ctrl.DaysUntilNextAllowed(today),
				OriginalDate:          ctrl.NextAllowedDate,
				ReleasedDate:          today,
			}
			if err := s.controlRepo.AppendEarlyRelease(ctx, entry); err != nil {
				return false, false, fmt.Errorf("recording early release: %w", err)
			}
			ctrl.WasReleasedEarly = true
			released = true
		}

		ctrl.Refresh(today, s.intervalSvc.explicitIntervalDays(ctx, med.ID))
		if err := s.controlRepo.Update(ctx, ctrl); err != nil {
			return false, false, fmt.Errorf("updating control: %w", err)
		}
		return false, released, nil

	case errors.Is(err, control.ErrControlNotFound):
		ctrl = &control.DispensationControl{
			PatientID:          cmd.PatientID,
			MedicationID:       med.ID,
			DispensationItemID: dispItem.ID,
			IsActive:           true,
		}
		ctrl.Refresh(today, s.intervalSvc.resolveIntervalDays(ctx, med))
		if err := s.controlRepo.Create(ctx, ctrl); err != nil {
			return false, false, fmt.Errorf("creating control: %w", err)
		}
		return true, false, nil

	default:
		return false, false, fmt.Errorf("loading control: %w", err)
	}
}

// ListByPatient returns a patient's dispensation history, newest first.
func (s *DispensationService) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*dispensation.Dispensation, error) {
	if _, err := s.patientRepo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.dispRepo.ListByPatient(ctx, patientID, limit)
}

func (s *DispensationService) GetByID(ctx context.Context, id uuid.UUID) (*dispensation.Dispensation, error) {
	return s.dispRepo.GetByID(ctx, id)
}

func batchBlockedError(blocked []BlockedMedication) *BatchBlockedError {
	e := &BatchBlockedError{Blocked: blocked}
	for _, b := range blocked {
		if b.CanForceRelease {
			e.RequiresAuthorization = true
		}
		if b.RequiresConfiguration {
			e.RequiresConfiguration = true
		}
	}
	return e
}
