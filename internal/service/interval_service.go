package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/config"
	"github.com/pharmaops/doseflow/internal/domain"
	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
	"github.com/pharmaops/doseflow/pkg/metrics"
)

// IntervalService answers interval-control questions and manages policy and
// early-release overrides for single controls. Batch gating during a
// dispensation belongs to DispensationService.
type IntervalService struct {
	controlRepo control.Repository
	medRepo     medication.Repository
	patientRepo patient.Repository
	auditSvc    *AuditService
	policy      config.PolicyConfig
	metrics     *metrics.Collector
	log         *zap.Logger

	now func() time.Time
}

func NewIntervalService(
	controlRepo control.Repository,
	medRepo medication.Repository,
	patientRepo patient.Repository,
	auditSvc *AuditService,
	policy config.PolicyConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *IntervalService {
	return &IntervalService{
		controlRepo: controlRepo,
		medRepo:     medRepo,
		patientRepo: patientRepo,
		auditSvc:    auditSvc,
		policy:      policy,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// IntervalStatus describes the gate for one (patient, medication) pair.
type IntervalStatus struct {
	HasControl      bool       `json:"has_control"`
	CanDispense     bool       `json:"can_dispense"`
	ControlID       *uuid.UUID `json:"control_id,omitempty"`
	LastDispensed   *time.Time `json:"last_dispensation,omitempty"`
	NextAllowedDate *time.Time `json:"next_allowed_date,omitempty"`
	DaysRemaining   int        `json:"days_remaining"`
	IntervalDays    int        `json:"interval_days"`
	IsOverdue       bool       `json:"is_overdue"`
}

// CheckStatus reports whether the patient may receive the medication today.
// A pair without an active control can always dispense.
func (s *IntervalService) CheckStatus(ctx context.Context, patientID, medicationID uuid.UUID) (*IntervalStatus, error) {
	if _, err := s.patientRepo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := s.medRepo.GetByID(ctx, medicationID); err != nil {
		return nil, err
	}

	ctrl, err := s.controlRepo.GetActive(ctx, patientID, medicationID)
	if err != nil {
		if errors.Is(err, control.ErrControlNotFound) {
			return &IntervalStatus{HasControl: false, CanDispense: true}, nil
		}
		return nil, fmt.Errorf("loading control: %w", err)
	}

	today := s.now()
	return &IntervalStatus{
		HasControl:      true,
		CanDispense:     ctrl.CanDispense(today),
		ControlID:       &ctrl.ID,
		LastDispensed:   &ctrl.LastDispensationDate,
		NextAllowedDate: &ctrl.NextAllowedDate,
		DaysRemaining:   ctrl.DaysUntilNextAllowed(today),
		IntervalDays:    ctrl.IntervalDaysUsed,
		IsOverdue:       ctrl.IsOverdue(today, s.policy.OverdueGraceDays),
	}, nil
}

// PatientIntervalHistory lists the active controls and the recent control
// history for one patient.
type PatientIntervalHistory struct {
	Active  []*control.DispensationControl `json:"active"`
	History []*control.DispensationControl `json:"history"`
}

func (s *IntervalService) History(ctx context.Context, patientID uuid.UUID) (*PatientIntervalHistory, error) {
	if _, err := s.patientRepo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}

	active, err := s.controlRepo.ListActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing active controls: %w", err)
	}
	history, err := s.controlRepo.ListByPatient(ctx, patientID, 50)
	if err != nil {
		return nil, fmt.Errorf("listing control history: %w", err)
	}

	return &PatientIntervalHistory{Active: active, History: history}, nil
}

type ConfigureIntervalCommand struct {
	MedicationID          uuid.UUID
	IntervalDays          int
	IsActive              bool
	RequiresJustification bool
	CreatedBy             uuid.UUID
}

// ConfigureInterval creates or updates a medication's interval policy.
func (s *IntervalService) ConfigureInterval(ctx context.Context, cmd *ConfigureIntervalCommand, callerID uuid.UUID, callerRole string, ip string) (*control.MedicationInterval, error) {
	if !roleCanConfigure(callerRole) {
		return nil, ErrForbidden
	}
	if cmd.IntervalDays < 1 {
		return nil, &ValidationError{Fields: []string{"interval_days must be at least 1"}}
	}

	if _, err := s.medRepo.GetByID(ctx, cmd.MedicationID); err != nil {
		return nil, fmt.Errorf("verifying medication: %w", err)
	}

	mi, err := s.controlRepo.GetMedicationInterval(ctx, cmd.MedicationID)
	if err != nil {
		if !errors.Is(err, control.ErrControlNotFound) {
			return nil, fmt.Errorf("loading interval config: %w", err)
		}
		mi = &control.MedicationInterval{
			MedicationID: cmd.MedicationID,
			CreatedBy:    cmd.CreatedBy,
		}
	}

	mi.IntervalDays = cmd.IntervalDays
	mi.IsActive = cmd.IsActive
	mi.RequiresJustification = cmd.RequiresJustification

	if err := s.controlRepo.SaveMedicationInterval(ctx, mi); err != nil {
		return nil, fmt.Errorf("saving interval config: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "medication_interval", ResourceID: mi.ID.String(), IPAddress: ip,
	})

	return mi, nil
}

// DeactivateControl turns off an active control. Subsequent dispensations
// for the pair skip interval gating until a policy is re-enabled.
func (s *IntervalService) DeactivateControl(ctx context.Context, controlID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) error {
	if domain.Role(callerRole) != domain.RoleAdmin {
		return ErrForbidden
	}

	if _, err := s.controlRepo.GetByID(ctx, controlID); err != nil {
		return err
	}
	if err := s.controlRepo.Deactivate(ctx, controlID); err != nil {
		return fmt.Errorf("deactivating control: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "delete", ResourceType: "dispensation_control", ResourceID: controlID.String(), IPAddress: ip,
	})
	return nil
}

type EarlyReleaseResult struct {
	ControlID uuid.UUID `json:"control_id"`
	DaysEarly int       `json:"days_early"`
}

// AuthorizeEarlyRelease bypasses a blocking interval with a justified,
// audited override. A control may not be released twice within the cooldown.
func (s *IntervalService) AuthorizeEarlyRelease(ctx context.Context, controlID uuid.UUID, callerID uuid.UUID, callerRole string, justification, ip string) (*EarlyReleaseResult, error) {
	if !domain.Role(callerRole).CanAuthorizeEarlyRelease() {
		return nil, ErrForbidden
	}
	if len(strings.TrimSpace(justification)) < s.policy.MinJustificationLen {
		return nil, control.ErrJustificationTooShort
	}

	ctrl, err := s.controlRepo.GetByID(ctx, controlID)
	if err != nil {
		return nil, err
	}

	last, err := s.controlRepo.LatestEarlyRelease(ctx, controlID)
	if err != nil {
		return nil, fmt.Errorf("loading release history: %w", err)
	}
	var lastAt *time.Time
	if last != nil {
		lastAt = &last.AuthorizedAt
	}

	now := s.now()
	if !ctrl.CanBeReleasedEarly(now, lastAt, s.policy.EarlyReleaseCooldown) {
		return nil, control.ErrEarlyReleaseNotEligible
	}

	daysEarly := ctrl.DaysUntilNextAllowed(now)
	entry := &control.EarlyReleaseLog{
		DispensationControlID: ctrl.ID,
		AuthorizedBy:          callerID,
		Justification:         strings.TrimSpace(justification),
		DaysEarly:             daysEarly,
		OriginalDate:          ctrl.NextAllowedDate,
		ReleasedDate:          now,
	}
	if err := s.controlRepo.AppendEarlyRelease(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording early release: %w", err)
	}

	ctrl.Release(now)
	if err := s.controlRepo.Update(ctx, ctrl); err != nil {
		return nil, fmt.Errorf("updating control: %w", err)
	}

	s.metrics.EarlyReleasesTotal.Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "early_release", ResourceID: entry.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"control_id":%q,"days_early":%d}`, ctrl.ID, daysEarly),
	})

	s.log.Info("early release authorized",
		zap.String("control_id", ctrl.ID.String()),
		zap.Int("days_early", daysEarly),
		zap.String("authorized_by", callerID.String()),
	)

	return &EarlyReleaseResult{ControlID: ctrl.ID, DaysEarly: daysEarly}, nil
}

// resolveIntervalDays picks the interval for a new control: the medication's
// explicit policy when active, else the type-based default from the policy
// table, else the configured fallback.
func (s *IntervalService) resolveIntervalDays(ctx context.Context, med *medication.Medication) int {
	mi, err := s.controlRepo.GetMedicationInterval(ctx, med.ID)
	if err == nil && mi.IsActive && mi.IntervalDays >= 1 {
		return mi.IntervalDays
	}

	if policy, err := s.controlRepo.GetPolicy(ctx, string(med.Type)); err == nil && policy.IntervalDays >= 1 {
		return policy.IntervalDays
	}

	return s.policy.DefaultIntervalDays
}

// explicitIntervalDays returns the medication's configured interval when an
// enabled policy exists, or zero. Zero tells callers to keep whatever
// interval an existing control already carries.
func (s *IntervalService) explicitIntervalDays(ctx context.Context, medicationID uuid.UUID) int {
	mi, err := s.controlRepo.GetMedicationInterval(ctx, medicationID)
	if err == nil && mi.IsActive && mi.IntervalDays >= 1 {
		return mi.IntervalDays
	}
	return 0
}

// hasIntervalPolicy reports whether the medication has any enabled interval
// configuration. Medications without one cannot be dispensed until a
// pharmacist sets a policy, and cannot be force-released.
func (s *IntervalService) hasIntervalPolicy(ctx context.Context, medicationID uuid.UUID) bool {
	mi, err := s.controlRepo.GetMedicationInterval(ctx, medicationID)
	return err == nil && mi.IsActive
}
