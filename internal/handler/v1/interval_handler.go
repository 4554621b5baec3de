package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/pharmaops/doseflow/internal/service"
)

type IntervalHandler struct {
	intervalSvc *service.IntervalService
}

func NewIntervalHandler(intervalSvc *service.IntervalService) *IntervalHandler {
	return &IntervalHandler{intervalSvc: intervalSvc}
}

func (h *IntervalHandler) CheckStatus(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	medicationID, ok := parseUUID(c, "medicationId")
	if !ok {
		return
	}

	status, err := h.intervalSvc.CheckStatus(c.Request.Context(), patientID, medicationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, status)
}

func (h *IntervalHandler) History(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	history, err := h.intervalSvc.History(c.Request.Context(), patientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, history)
}

type configureIntervalRequest struct {
	IntervalDays          int  `json:"interval_days" binding:"required,min=1"`
	IsActive              bool `json:"is_active"`
	RequiresJustification bool `json:"requires_justification"`
}

func (h *IntervalHandler) ConfigureInterval(c *gin.Context) {
	medicationID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req configureIntervalRequest
	if !bindJSON(c, &req) {
		return
	}

	claims := mustClaims(c)
	mi, err := h.intervalSvc.ConfigureInterval(c.Request.Context(), &service.ConfigureIntervalCommand{
		MedicationID:          medicationID,
		IntervalDays:          req.IntervalDays,
		IsActive:              req.IsActive,
		RequiresJustification: req.RequiresJustification,
		CreatedBy:             claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, mi)
}

type earlyReleaseRequest struct {
	Justification string `json:"justification" binding:"required"`
}

func (h *IntervalHandler) AuthorizeEarlyRelease(c *gin.Context) {
	controlID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req earlyReleaseRequest
	if !bindJSON(c, &req) {
		return
	}

	claims := mustClaims(c)
	result, err := h.intervalSvc.AuthorizeEarlyRelease(
		c.Request.Context(), controlID, claims.UserID, string(claims.Role), req.Justification, c.ClientIP(),
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, result)
}

func (h *IntervalHandler) DeactivateControl(c *gin.Context) {
	controlID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	claims := mustClaims(c)
	err := h.intervalSvc.DeactivateControl(c.Request.Context(), controlID, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"deactivated": true})
}
