package console

import (
	"errors"

	"github.com/nerrad567/device-console/internal/auth"
)

// Flash categories.
const (
	FlashInfo    = "info"
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// View names handed to the renderer.
const (
	ViewLogin     = "login"
	ViewRegister  = "register"
	ViewDashboard = "dashboard"
	ViewTips      = "tips"
	ViewDevices   = "devices"
	ViewAddDevice = "add_device"
	ViewEdit      = "edit_device"
	ViewAudit     = "audit"
)

// Redirect targets.
const (
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathDevices   = "/devices"
)

// Flash is a one-shot message for the next page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Result is the outcome of a console operation.
//
// A Result either names a View to render with Data, or a Redirect to
// follow. Err is set for every failure; its class (see errors.go) decides
// how the presentation layer reports it.
type Result struct {
	OK       bool   `json:"ok"`
	View     string `json:"view,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Flash    *Flash `json:"flash,omitempty"`
	Data     any    `json:"data,omitempty"`

	// Session is set by a successful Login.
	Session *auth.Login `json:"-"`
	// EndSession asks the presentation layer to drop the client's token.
	EndSession bool  `json:"-"`
	Err        error `json:"-"`
}

// Failed reports whether the operation did not succeed.
func (r Result) Failed() bool {
	return !r.OK
}

// IsStorageFailure reports whether the result carries an error outside
// the recoverable classes.
func (r Result) IsStorageFailure() bool {
	if r.Err == nil {
		return false
	}
	for _, known := range recoverable {
		if errors.Is(r.Err, known) {
			return false
		}
	}
	return true
}

func flash(category, message string) *Flash {
	return &Flash{Category: category, Message: message}
}

func success(redirect string, f *Flash) Result {
	return Result{OK: true, Redirect: redirect, Flash: f}
}

func render(view string, data any) Result {
	return Result{OK: true, View: view, Data: data}
}

func failure(err error, view, redirect string, f *Flash) Result {
	return Result{View: view, Redirect: redirect, Flash: f, Err: err}
}
