package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/device-console/internal/audit"
	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/console"
	"github.com/nerrad567/device-console/internal/device"
)

// loginData is returned with a successful login for clients that use
// bearer tokens instead of the cookie.
type loginData struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, res console.Result) {
	if res.IsStorageFailure() {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", res.Err,
		)
	}
	s.renderer.Render(w, r, res)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, console.Result{OK: true, View: console.ViewLogin})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, console.Result{OK: true, View: console.ViewRegister})
}

func (s *Server) handleAddDevicePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.AddDeviceForm(r.Context(), auth.SessionFromContext(r.Context())))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(r, "username", "password")
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	res := s.console.Login(r.Context(), auth.SessionFromContext(r.Context()), f["username"], f["password"])
	if res.Session != nil {
		s.setSessionCookie(w, res.Session)
		res.Data = loginData{Token: res.Session.Token, ExpiresAt: res.Session.ExpiresAt}
	}
	s.render(w, r, res)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(r, "username", "password", "confirm")
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	res := s.console.Register(r.Context(), auth.SessionFromContext(r.Context()), f["username"], f["password"], f["confirm"])
	s.render(w, r, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	res := s.console.Logout(r.Context(), sess)
	if res.EndSession {
		s.clearSessionCookie(w)
		if s.hub != nil {
			s.hub.DisconnectSession(sess.ID())
		}
	}
	s.render(w, r, res)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.Dashboard(r.Context(), auth.SessionFromContext(r.Context())))
}

func (s *Server) handleTips(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.Tips(r.Context(), auth.SessionFromContext(r.Context())))
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.ListDevices(r.Context(), auth.SessionFromContext(r.Context())))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.GetDevice(r.Context(), auth.SessionFromContext(r.Context()), deviceID(r)))
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	in, err := readDeviceInput(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	s.render(w, r, s.console.AddDevice(r.Context(), auth.SessionFromContext(r.Context()), in))
}

func (s *Server) handleEditDevice(w http.ResponseWriter, r *http.Request) {
	in, err := readDeviceInput(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	s.render(w, r, s.console.EditDevice(r.Context(), auth.SessionFromContext(r.Context()), deviceID(r), in))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.console.DeleteDevice(r.Context(), auth.SessionFromContext(r.Context()), deviceID(r)))
}

// handleAudit returns a page of audit entries.
//
// Query parameters:
//   - action: filter by action (login, create, ...)
//   - entity_type: filter by entity type (user, session, device)
//   - entity_id: filter by entity id
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	s.render(w, r, s.console.AuditTrail(r.Context(), auth.SessionFromContext(r.Context()), filter))
}

// handleHealth reports liveness and the state of each dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	body := map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	}
	if s.hub != nil {
		body["websocket_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, status, body)
}

// deviceID parses the {id} path segment. Anything unparsable becomes 0,
// which no device has, so the console reports it as not found after the
// session check.
func deviceID(r *http.Request) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// readDeviceInput reads name, type and secret. "password" is accepted as
// an alias for the secret field.
func readDeviceInput(r *http.Request) (device.Input, error) {
	f, err := readFields(r, "name", "type", "secret", "password")
	if err != nil {
		return device.Input{}, err
	}
	secret := f["secret"]
	if secret == "" {
		secret = f["password"]
	}
	return device.Input{Name: f["name"], Type: f["type"], Secret: secret}, nil
}

// readFields reads string fields from a JSON object body or from form
// values, depending on Content-Type. Missing fields are "".
func readFields(r *http.Request, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))

	if isJSON(r) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		for _, name := range names {
			if v, ok := body[name].(string); ok {
				out[name] = v
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for _, name := range names {
		out[name] = r.PostForm.Get(name)
	}
	return out, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
