package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/domain"
	"github.com/pharmaops/doseflow/internal/domain/dosage"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/pkg/metrics"
)

// CalculationService runs dosage calculations against stored medication
// configuration. The math itself lives in the dosage package and is pure;
// this service only resolves configuration and annotates stock context.
type CalculationService struct {
	medRepo  medication.Repository
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewCalculationService(medRepo medication.Repository, auditSvc *AuditService, m *metrics.Collector, log *zap.Logger) *CalculationService {
	return &CalculationService{medRepo: medRepo, auditSvc: auditSvc, metrics: m, log: log}
}

type CalculateCommand struct {
	MedicationID    uuid.UUID
	PrescribedDose  decimal.Decimal
	PrescribedUnit  string
	FrequencyPerDay int
	TreatmentDays   int
}

// MedicationCalculation is a dosage result annotated with the medication it
// was computed for. Stock sufficiency is informational; the dispensation
// orchestrator is the one that enforces it.
type MedicationCalculation struct {
	MedicationID    uuid.UUID      `json:"medication_id"`
	MedicationName  string         `json:"medication_name"`
	Form            string         `json:"pharmaceutical_form"`
	CurrentStock    int            `json:"current_stock"`
	SufficientStock bool           `json:"sufficient_stock"`
	Result          *dosage.Result `json:"result"`
}

// CalculateForMedication loads the medication's active dispensing config and
// runs the complete calculation pipeline against it.
func (s *CalculationService) CalculateForMedication(ctx context.Context, cmd *CalculateCommand) (*MedicationCalculation, error) {
	med, err := s.medRepo.GetByID(ctx, cmd.MedicationID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.medRepo.GetActiveConfig(ctx, cmd.MedicationID)
	if err != nil {
		if errors.Is(err, medication.ErrConfigNotFound) {
			return nil, &NeedsConfigurationError{MedicationID: med.ID, MedicationName: med.CommercialName}
		}
		return nil, err
	}

	result, err := dosage.Complete(dosage.Request{
		PrescribedDose:  cmd.PrescribedDose,
		PrescribedUnit:  cmd.PrescribedUnit,
		Config:          cfg.DosageConfig(),
		FrequencyPerDay: cmd.FrequencyPerDay,
		TreatmentDays:   cmd.TreatmentDays,
	})
	if err != nil {
		s.metrics.CalculationErrors.WithLabelValues(calcErrorKind(err)).Inc()
		return nil, fmt.Errorf("calculating dispensation for medication %s: %w", med.ID, err)
	}

	s.metrics.CalculationsTotal.Inc()

	return &MedicationCalculation{
		MedicationID:    med.ID,
		MedicationName:  med.CommercialName,
		Form:            med.PharmaceuticalForm,
		CurrentStock:    med.CurrentStock,
		SufficientStock: med.CurrentStock >= result.PackagesNeeded,
		Result:          result,
	}, nil
}

// SaveConfiguration validates and persists a medication's dispensing
// configuration. Only pharmacists and admins may configure medications.
func (s *CalculationService) SaveConfiguration(ctx context.Context, cmd *medication.SaveConfigCommand, callerID uuid.UUID, callerRole string, ip string) (*medication.DispensingConfig, error) {
	if !roleCanConfigure(callerRole) {
		return nil, ErrForbidden
	}

	cfg := &medication.DispensingConfig{
		MedicationID:  cmd.MedicationID,
		StrengthValue: cmd.StrengthValue,
		StrengthUnit:  cmd.StrengthUnit,
		VolumePerDose: cmd.VolumePerDose,
		VolumeUnit:    cmd.VolumeUnit,
		PackageSize:   cmd.PackageSize,
		PackageUnit:   cmd.PackageUnit,
		DropsPerML:    cmd.DropsPerML,
		StabilityDays: cmd.StabilityDays,
		IsActive:      true,
		CreatedBy:     cmd.CreatedBy,
	}

	if err := cfg.DosageConfig().Validate(); err != nil {
		return nil, err
	}

	if _, err := s.medRepo.GetByID(ctx, cmd.MedicationID); err != nil {
		return nil, fmt.Errorf("verifying medication: %w", err)
	}

	if err := s.medRepo.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("saving dispensing config: %w", err)
	}

	s.metrics.ConfigsSavedTotal.Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "dispensing_config", ResourceID: cfg.ID.String(), IPAddress: ip,
	})

	return cfg, nil
}

// GetConfiguration returns the medication's active dispensing configuration.
func (s *CalculationService) GetConfiguration(ctx context.Context, medicationID uuid.UUID) (*medication.DispensingConfig, error) {
	if _, err := s.medRepo.GetByID(ctx, medicationID); err != nil {
		return nil, err
	}
	return s.medRepo.GetActiveConfig(ctx, medicationID)
}

// DeactivateConfiguration retires the active config without replacement.
// Calculations for the medication fail until a new one is saved.
func (s *CalculationService) DeactivateConfiguration(ctx context.Context, medicationID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) error {
	if !roleCanConfigure(callerRole) {
		return ErrForbidden
	}
	if err := s.medRepo.DeactivateConfig(ctx, medicationID); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "delete", ResourceType: "dispensing_config", ResourceID: medicationID.String(), IPAddress: ip,
	})
	return nil
}

func roleCanConfigure(role string) bool {
	return domain.Role(role).CanConfigureMedication()
}

func calcErrorKind(err error) string {
	var cfgErr *dosage.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.Is(err, dosage.ErrUnsupportedConversion):
		return "conversion"
	case errors.Is(err, dosage.ErrInvalidInput):
		return "input"
	default:
		return "other"
	}
}
