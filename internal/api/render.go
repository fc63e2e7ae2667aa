package api

import (
	"net/http"

	"github.com/nerrad567/device-console/internal/console"
)

// Renderer turns a console Result into an HTTP response.
//
// The JSON renderer is the default; an HTML renderer can be swapped in
// without touching the handlers.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, res console.Result)
}

// resultBody is the JSON form of a console Result.
type resultBody struct {
	OK       bool           `json:"ok"`
	View     string         `json:"view,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
	Flash    *console.Flash `json:"flash,omitempty"`
	Data     any            `json:"data,omitempty"`
	Code     string         `json:"code,omitempty"`
}

// JSONRenderer writes {ok, view, redirect, flash, data}. Redirect targets
// are returned in the body rather than followed with a 3xx.
type JSONRenderer struct{}

// Render implements Renderer.
func (JSONRenderer) Render(w http.ResponseWriter, _ *http.Request, res console.Result) {
	status, code := classify(res.Err)
	if res.Err == nil && !res.OK {
		status, code = http.StatusInternalServerError, ErrCodeInternal
	}

	writeJSON(w, status, resultBody{
		OK:       res.OK,
		View:     res.View,
		Redirect: res.Redirect,
		Flash:    res.Flash,
		Data:     res.Data,
		Code:     code,
	})
}
