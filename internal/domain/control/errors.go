package control

import "errors"

var (
	ErrControlNotFound         = errors.New("dispensation control not found")
	ErrIntervalBlocked         = errors.New("dispensation blocked by interval control")
	ErrEarlyReleaseNotEligible = errors.New("control is not eligible for early release")
	ErrJustificationTooShort   = errors.New("justification must have at least 10 characters")
	ErrPolicyNotFound          = errors.New("no interval policy for medication type")
)
