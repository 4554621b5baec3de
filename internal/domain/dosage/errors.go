package dosage

import "errors"

var (
	ErrUnsupportedConversion = errors.New("unsupported unit conversion")
	ErrInvalidInput          = errors.New("invalid calculation input")
)

// ConfigError reports a medication configuration that violates a
// pharmacological rule. The reason is safe to show to the user.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid medication configuration: " + e.Reason
}
