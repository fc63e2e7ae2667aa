package console

import (
	"errors"

	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/device"
)

// Error classes carried in Result.Err.
var (
	// ErrValidation marks empty fields, mismatched passwords and other
	// input problems. Nothing was written.
	ErrValidation = errors.New("console: invalid input")

	// ErrUnauthenticated is returned by guarded operations called with an
	// anonymous session.
	ErrUnauthenticated = errors.New("console: login required")
)

// recoverable lists the classes that are reported to the user rather
// than treated as storage failures.
var recoverable = []error{
	ErrValidation,
	ErrUnauthenticated,
	auth.ErrUsernameExists,
	auth.ErrInvalidCredentials,
	device.ErrInvalidDevice,
	device.ErrInvalidName,
	device.ErrInvalidType,
	device.ErrMissingSecret,
	device.ErrDeviceNotFound,
}

// User-visible messages.
const (
	msgFillAllFields    = "Please fill all fields."
	msgPasswordMismatch = "Passwords do not match."
	msgBadUsername      = "Username may contain only letters, digits, dots, hyphens and underscores (max 64)."
	msgUsernameExists   = "Username already exists."
	msgAccountCreated   = "Account created. You can login now."
	msgInvalidLogin     = "Invalid username or password"
	msgLoggedOut        = "Logged out successfully."
	msgLoginRequired    = "Please log in to continue."
	msgDeviceFields     = "Please fill the device name and secret."
	msgDeviceName       = "Please fill the device name."
	msgDeviceAdded      = "Device added successfully!"
	msgDeviceUpdated    = "Device updated successfully."
	msgDeviceNotFound   = "Device not found."
	msgDeviceDeleted    = "Device deleted."
	msgStorageFailure   = "Something went wrong. Please try again."
)
