package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/dispensation"
	"github.com/pharmaops/doseflow/internal/domain/dosage"
	"github.com/pharmaops/doseflow/internal/domain/medication"
	"github.com/pharmaops/doseflow/internal/domain/patient"
	"github.com/pharmaops/doseflow/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// BlockedResponse carries the per-medication blocking details so the client
// can offer an override where one is possible.
type BlockedResponse struct {
	Error                 string                      `json:"error"`
	Code                  string                      `json:"code"`
	BlockedMedications    []service.BlockedMedication `json:"blocked_medications"`
	RequiresAuthorization bool                        `json:"requires_authorization"`
	RequiresConfiguration bool                        `json:"requires_configuration"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	var cfgErr *dosage.ConfigError
	if errors.As(err, &cfgErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: cfgErr.Error(),
			Code:  "CONFIGURATION_INVALID",
		})
		return
	}

	var needsCfg *service.NeedsConfigurationError
	if errors.As(err, &needsCfg) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: needsCfg.Error(),
			Code:  "NEEDS_CONFIGURATION",
			Details: map[string]string{
				"medication_id":   needsCfg.MedicationID.String(),
				"medication_name": needsCfg.MedicationName,
			},
		})
		return
	}

	var blockedErr *service.BatchBlockedError
	if errors.As(err, &blockedErr) {
		c.JSON(http.StatusConflict, BlockedResponse{
			Error:                 "medications blocked for dispensation",
			Code:                  "INTERVAL_BLOCKED",
			BlockedMedications:    blockedErr.Blocked,
			RequiresAuthorization: blockedErr.RequiresAuthorization,
			RequiresConfiguration: blockedErr.RequiresConfiguration,
		})
		return
	}

	switch {
	case errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, medication.ErrMedicationNotFound),
		errors.Is(err, medication.ErrConfigNotFound),
		errors.Is(err, control.ErrControlNotFound),
		errors.Is(err, dispensation.ErrDispensationNotFound),
		errors.Is(err, control.ErrPolicyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, medication.ErrInsufficientStock):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INSUFFICIENT_STOCK"})

	case errors.Is(err, control.ErrEarlyReleaseNotEligible):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "EARLY_RELEASE_NOT_ELIGIBLE"})

	case errors.Is(err, dosage.ErrUnsupportedConversion),
		errors.Is(err, dosage.ErrInvalidInput),
		errors.Is(err, control.ErrJustificationTooShort),
		errors.Is(err, patient.ErrPatientInactive):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})

	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}
