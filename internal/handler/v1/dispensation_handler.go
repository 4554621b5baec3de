package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaops/doseflow/internal/service"
)

type DispensationHandler struct {
	dispSvc *service.DispensationService
}

func NewDispensationHandler(dispSvc *service.DispensationService) *DispensationHandler {
	return &DispensationHandler{dispSvc: dispSvc}
}

type dispenseItemRequest struct {
	MedicationID uuid.UUID `json:"medication_id" binding:"required"`
	Quantity     int       `json:"quantity" binding:"required,min=1"`
	Observations string    `json:"observations"`

	PrescribedDose  *decimal.Decimal `json:"prescribed_dose"`
	PrescribedUnit  string           `json:"prescribed_unit"`
	FrequencyPerDay *int             `json:"frequency_per_day"`
	TreatmentDays   *int             `json:"treatment_days"`
}

type dispenseRequest struct {
	PatientID           uuid.UUID             `json:"patient_id" binding:"required"`
	Medications         []dispenseItemRequest `json:"medications" binding:"required,min=1,dive"`
	GeneralObservations string                `json:"general_observations"`
	ForceRelease        bool                  `json:"force_release"`
	ForceJustification  string                `json:"force_justification"`
}

func (h *DispensationHandler) Dispense(c *gin.Context) {
	var req dispenseRequest
	if !bindJSON(c, &req) {
		return
	}

	items := make([]service.DispenseItemCommand, 0, len(req.Medications))
	for _, m := range req.Medications {
		items = append(items, service.DispenseItemCommand{
			MedicationID:    m.MedicationID,
			Quantity:        m.Quantity,
			Observations:    m.Observations,
			PrescribedDose:  m.PrescribedDose,
			PrescribedUnit:  m.PrescribedUnit,
			FrequencyPerDay: m.FrequencyPerDay,
			TreatmentDays:   m.TreatmentDays,
		})
	}

	claims := mustClaims(c)
	result, err := h.dispSvc.Dispense(c.Request.Context(), &service.DispenseCommand{
		PatientID:           req.PatientID,
		Items:               items,
		GeneralObservations: req.GeneralObservations,
		ForceRelease:        req.ForceRelease,
		ForceJustification:  req.ForceJustification,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, result)
}

func (h *DispensationHandler) GetByID(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	disp, err := h.dispSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, disp)
}

func (h *DispensationHandler) ListByPatient(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	limit := parseQueryInt(c, "limit", 20)
	list, err := h.dispSvc.ListByPatient(c.Request.Context(), patientID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, list)
}
