package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/pharmaops/doseflow/internal/domain/dosage"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/service"
)

type CalculationHandler struct {
	calcSvc *service.CalculationService
}

func NewCalculationHandler(calcSvc *service.CalculationService) *CalculationHandler {
	return &CalculationHandler{calcSvc: calcSvc}
}

// Units lists the unit vocabulary the converter accepts.
func (h *CalculationHandler) Units(c *gin.Context) {
	respondOK(c, dosage.Units())
}

type convertRequest struct {
	Value    decimal.Decimal `json:"value" binding:"required"`
	FromUnit string          `json:"from_unit" binding:"required"`
	ToUnit   string          `json:"to_unit" binding:"required"`
}

type convertResponse struct {
	Value    decimal.Decimal `json:"value"`
	FromUnit string          `json:"from_unit"`
	ToUnit   string          `json:"to_unit"`
	Result   decimal.Decimal `json:"result"`
}

func (h *CalculationHandler) Convert(c *gin.Context) {
	var req convertRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := dosage.Convert(req.Value, req.FromUnit, req.ToUnit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, convertResponse{
		Value:    req.Value,
		FromUnit: req.FromUnit,
		ToUnit:   req.ToUnit,
		Result:   result,
	})
}

type calculateRequest struct {
	PrescribedDose  decimal.Decimal `json:"prescribed_dose" binding:"required"`
	PrescribedUnit  string          `json:"prescribed_unit" binding:"required"`
	FrequencyPerDay int             `json:"frequency_per_day" binding:"required,min=1"`
	TreatmentDays   int             `json:"treatment_days" binding:"required,min=1"`
}

func (h *CalculationHandler) Calculate(c *gin.Context) {
	medicationID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req calculateRequest
	if !bindJSON(c, &req) {
		return
	}

	calc, err := h.calcSvc.CalculateForMedication(c.Request.Context(), &service.CalculateCommand{
		MedicationID:    medicationID,
		PrescribedDose:  req.PrescribedDose,
		PrescribedUnit:  req.PrescribedUnit,
		FrequencyPerDay: req.FrequencyPerDay,
		TreatmentDays:   req.TreatmentDays,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, calc)
}

type configPayload struct {
	StrengthValue decimal.Decimal `json:"strength_value" binding:"required"`
	StrengthUnit  string          `json:"strength_unit" binding:"required"`
	VolumePerDose decimal.Decimal `json:"volume_per_dose" binding:"required"`
	VolumeUnit    string          `json:"volume_unit" binding:"required"`
	PackageSize   decimal.Decimal `json:"package_size" binding:"required"`
	PackageUnit   string          `json:"package_unit" binding:"required"`
	DropsPerML    *int            `json:"drops_per_ml"`
	StabilityDays *int            `json:"stability_days"`
}

func (p configPayload) toConfig() dosage.Config {
	return dosage.Config{
		StrengthValue: p.StrengthValue,
		StrengthUnit:  p.StrengthUnit,
		VolumePerDose: p.VolumePerDose,
		VolumeUnit:    p.VolumeUnit,
		PackageSize:   p.PackageSize,
		PackageUnit:   p.PackageUnit,
		DropsPerML:    p.DropsPerML,
		StabilityDays: p.StabilityDays,
	}
}

type rawCalculateRequest struct {
	PrescribedDose  decimal.Decimal `json:"prescribed_dose" binding:"required"`
	PrescribedUnit  string          `json:"prescribed_unit" binding:"required"`
	FrequencyPerDay int             `json:"frequency_per_day" binding:"required,min=1"`
	TreatmentDays   int             `json:"treatment_days" binding:"required,min=1"`
	Config          configPayload   `json:"config" binding:"required"`
}

// CalculateRaw runs the pipeline against a configuration supplied in the
// request, without touching stored medication data. Used to preview a
// configuration before saving it.
func (h *CalculationHandler) CalculateRaw(c *gin.Context) {
	var req rawCalculateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := dosage.Complete(dosage.Request{
		PrescribedDose:  req.PrescribedDose,
		PrescribedUnit:  req.PrescribedUnit,
		Config:          req.Config.toConfig(),
		FrequencyPerDay: req.FrequencyPerDay,
		TreatmentDays:   req.TreatmentDays,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, result)
}

// ValidateConfig checks a configuration against the pharmacological rules
// without persisting anything.
func (h *CalculationHandler) ValidateConfig(c *gin.Context) {
	var req configPayload
	if !bindJSON(c, &req) {
		return
	}

	if err := req.toConfig().Validate(); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"valid": true})
}

type saveConfigRequest struct {
	StrengthValue decimal.Decimal `json:"strength_value" binding:"required"`
	StrengthUnit  string          `json:"strength_unit" binding:"required"`
	VolumePerDose decimal.Decimal `json:"volume_per_dose" binding:"required"`
	VolumeUnit    string          `json:"volume_unit" binding:"required"`
	PackageSize   decimal.Decimal `json:"package_size" binding:"required"`
	PackageUnit   string          `json:"package_unit" binding:"required"`
	DropsPerML    *int            `json:"drops_per_ml"`
	StabilityDays *int            `json:"stability_days"`
}

func (h *CalculationHandler) SaveConfig(c *gin.Context) {
	medicationID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req saveConfigRequest
	if !bindJSON(c, &req) {
		return
	}

	claims := mustClaims(c)
	cfg, err := h.calcSvc.SaveConfiguration(c.Request.Context(), &medication.SaveConfigCommand{
		MedicationID:  medicationID,
		StrengthValue: req.StrengthValue,
		StrengthUnit:  req.StrengthUnit,
		VolumePerDose: req.VolumePerDose,
		VolumeUnit:    req.VolumeUnit,
		PackageSize:   req.PackageSize,
		PackageUnit:   req.PackageUnit,
		DropsPerML:    req.DropsPerML,
		StabilityDays: req.StabilityDays,
		CreatedBy:     claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, cfg)
}

func (h *CalculationHandler) GetConfig(c *gin.Context) {
	medicationID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	cfg, err := h.calcSvc.GetConfiguration(c.Request.Context(), medicationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, cfg)
}

func (h *CalculationHandler) DeactivateConfig(c *gin.Context) {
	medicationID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	claims := mustClaims(c)
	err := h.calcSvc.DeactivateConfiguration(c.Request.Context(), medicationID, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"deactivated": true})
}
