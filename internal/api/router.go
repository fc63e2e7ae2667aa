package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// defaultRequestTimeout applies when the config leaves it unset.
const defaultRequestTimeout = 15 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.sessionMiddleware)

	// The event feed is long-lived and must not inherit the request timeout.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))

		r.Get("/health", s.handleHealth)

		r.Get("/", s.handleLoginPage)
		r.Post("/", s.handleLogin)
		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)

		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)

		r.Get("/logout", s.handleLogout)
		r.Post("/logout", s.handleLogout)

		// Guarding happens in console.Service; these routes only translate.
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/tips", s.handleTips)
		r.Get("/audit", s.handleAudit)

		r.Get("/devices", s.handleListDevices)
		r.Get("/add_device", s.handleAddDevicePage)
		r.Post("/add_device", s.handleAddDevice)

		r.Get("/edit_device/{id}", s.handleGetDevice)
		r.Post("/edit_device/{id}", s.handleEditDevice)

		r.Get("/delete_device/{id}", s.handleDeleteDevice)
		r.Post("/delete_device/{id}", s.handleDeleteDevice)
	})

	return r
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Timeouts.Request <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(s.cfg.Timeouts.Request) * time.Second
}
