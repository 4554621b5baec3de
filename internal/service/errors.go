package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pharmaops/doseflow/internal/domain/medication"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

// NeedsConfigurationError signals a calculation request for a medication
// without an active dispensing configuration. Distinguished from a plain
// not-found so clients can route the pharmacist to the configuration form.
type NeedsConfigurationError struct {
	MedicationID   uuid.UUID
	MedicationName string
}

func (e *NeedsConfigurationError) Error() string {
	return fmt.Sprintf("medication %s has no active dispensing configuration", e.MedicationID)
}

func (e *NeedsConfigurationError) Unwrap() error { return medication.ErrConfigNotFound }

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      string
}
