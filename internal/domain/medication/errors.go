package medication

import "errors"

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrConfigNotFound     = errors.New("medication has no dispensing configuration")
	ErrInsufficientStock  = errors.New("insufficient stock")
)
