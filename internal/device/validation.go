package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxNameLength = 100
	MaxTypeLength = 64
)

// Input is the raw form data for adding or editing a device.
type Input struct {
	Name   string
	Type   string
	Secret string
}

// Normalise trims surrounding whitespace from name and type. The secret is
// left as entered.
func (in Input) Normalise() Input {
	return Input{
		Name:   strings.TrimSpace(in.Name),
		Type:   strings.TrimSpace(in.Type),
		Secret: in.Secret,
	}
}

// ValidateName checks that a device name is present and within limits.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	return nil
}

// ValidateType checks the free-form type label. Empty is allowed.
func ValidateType(typ string) error {
	if utf8.RuneCountInString(typ) > MaxTypeLength {
		return fmt.Errorf("%w: type exceeds %d characters", ErrInvalidType, MaxTypeLength)
	}
	return nil
}

// ValidateDevice checks a device before it is written.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if d.SecretHash == "" {
		return ErrMissingSecret
	}
	return nil
}
