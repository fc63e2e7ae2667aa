package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/device-console/internal/audit"
	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/console"
	"github.com/nerrad567/device-console/internal/device"
	"github.com/nerrad567/device-console/internal/infrastructure/config"
	"github.com/nerrad567/device-console/internal/infrastructure/database"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
	"github.com/nerrad567/device-console/migrations"
)

const testSecret = "api-test-secret-at-least-32-characters"

type testServer struct {
	*httptest.Server
	db     *sql.DB
	hub    *Hub
	client *http.Client
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("broker unreachable") }

func newTestServer(t *testing.T, checks map[string]HealthChecker) *testServer {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	logger := logging.Discard()
	users := auth.NewUserRepository(db.DB)
	guard, err := auth.NewGuard(users, auth.NewSessionRepository(db.DB),
		auth.GuardConfig{Secret: testSecret, TTL: time.Hour}, logger)
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	wsCfg := config.WebSocketConfig{Enabled: true, MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10}
	hub, err := NewHub(wsCfg, guard, logger)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}

	svc, err := console.New(console.Deps{
		Users:      users,
		Devices:    device.NewSQLiteRepository(db.DB),
		Guard:      guard,
		AuditLogs:  audit.NewSQLiteRepository(db.DB),
		Publishers: []console.EventPublisher{hub},
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("console.New() error = %v", err)
	}

	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	checks["database"] = db

	srv, err := New(Deps{
		Config:  config.APIConfig{MaxBodyBytes: 1 << 16},
		Session: config.SessionConfig{CookieName: "test_session"},
		WS:      wsCfg,
		Logger:  logger,
		Console: svc,
		Guard:   guard,
		Hub:     hub,
		Checks:  checks,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx) //nolint:errcheck // Always nil

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}

	return &testServer{
		Server: ts,
		db:     db.DB,
		hub:    hub,
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
}

type response struct {
	status int
	header http.Header
	body   resultBody
	raw    []byte
}

func (ts *testServer) do(t *testing.T, req *http.Request) response {
	t.Helper()
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	out := response{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", req.Method, req.URL.Path, raw, err)
		}
	}
	return out
}

func (ts *testServer) get(t *testing.T, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ts.do(t, req)
}

func (ts *testServer) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, req)
}

func (ts *testServer) postJSON(t *testing.T, path, body, token string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.do(t, req)
}

func (ts *testServer) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := ts.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func (ts *testServer) signup(t *testing.T, username, password string) {
	t.Helper()
	res := ts.postForm(t, "/register", url.Values{
		"username": {username}, "password": {password}, "confirm": {password},
	})
	if res.status != http.StatusOK || res.body.Redirect != console.PathLogin {
		t.Fatalf("register: status %d body %s", res.status, res.raw)
	}
	res = ts.postForm(t, "/login", url.Values{"username": {username}, "password": {password}})
	if res.status != http.StatusOK || res.body.Redirect != console.PathDashboard {
		t.Fatalf("login: status %d body %s", res.status, res.raw)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) error = nil, want error")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without console error = nil, want error")
	}
}

func TestScenario_DeviceLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "alice", "pw1")

	res := ts.get(t, "/dashboard")
	if res.status != http.StatusOK || res.body.View != console.ViewDashboard {
		t.Fatalf("dashboard: status %d body %s", res.status, res.raw)
	}

	res = ts.postForm(t, "/add_device", url.Values{"name": {"sensor1"}, "type": {"thermo"}, "secret": {"s3cret"}})
	if res.status != http.StatusOK || res.body.Redirect != console.PathDevices {
		t.Fatalf("add_device: status %d body %s", res.status, res.raw)
	}

	res = ts.get(t, "/devices")
	var list struct {
		Data []device.View `json:"data"`
	}
	if err := json.Unmarshal(res.raw, &list); err != nil {
		t.Fatalf("decoding devices: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Name != "sensor1" || !list.Data[0].SecretSet {
		t.Fatalf("devices = %+v", list.Data)
	}
	if strings.Contains(string(res.raw), "s3cret") || strings.Contains(string(res.raw), "secret_hash") {
		t.Errorf("device listing leaks secret material: %s", res.raw)
	}
	id := list.Data[0].ID

	path := "/edit_device/" + strconv.FormatInt(id, 10)
	if res = ts.get(t, path); res.body.View != console.ViewEdit {
		t.Fatalf("edit page: status %d body %s", res.status, res.raw)
	}
	res = ts.postForm(t, path, url.Values{"name": {"sensor1"}, "type": {"thermo"}, "password": {"n3w"}})
	if res.status != http.StatusOK || res.body.Flash == nil || res.body.Flash.Category != console.FlashSuccess {
		t.Fatalf("edit: status %d body %s", res.status, res.raw)
	}

	res = ts.postForm(t, "/delete_device/"+strconv.FormatInt(id, 10), nil)
	if res.status != http.StatusOK || ts.count(t, "devices") != 0 {
		t.Fatalf("delete: status %d body %s", res.status, res.raw)
	}

	res = ts.postForm(t, "/logout", nil)
	if res.status != http.StatusOK || res.body.Redirect != console.PathLogin {
		t.Fatalf("logout: status %d body %s", res.status, res.raw)
	}
	if res = ts.get(t, "/devices"); res.status != http.StatusUnauthorized {
		t.Errorf("devices after logout: status %d, want 401", res.status)
	}
}

func TestAnonymousRequestsRedirectToLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/dashboard", "/tips", "/devices", "/add_device", "/edit_device/1", "/audit"} {
		res := ts.get(t, path)
		if res.status != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, res.status)
		}
		if res.body.Redirect != console.PathLogin {
			t.Errorf("GET %s redirect = %q, want %q", path, res.body.Redirect, console.PathLogin)
		}
	}

	res := ts.postForm(t, "/add_device", url.Values{"name": {"x"}, "secret": {"y"}})
	if res.status != http.StatusUnauthorized {
		t.Errorf("POST /add_device status = %d, want 401", res.status)
	}
	ts.postForm(t, "/delete_device/1", nil)
	if got := ts.count(t, "devices"); got != 0 {
		t.Errorf("devices = %d after anonymous writes, want 0", got)
	}
}

func TestJSONBodyAndBearerToken(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.client.Jar = nil

	res := ts.postJSON(t, "/register", `{"username":"bob","password":"pw","confirm":"pw"}`, "")
	if res.status != http.StatusOK {
		t.Fatalf("register: status %d body %s", res.status, res.raw)
	}

	res = ts.postJSON(t, "/login", `{"username":"bob","password":"pw"}`, "")
	if res.status != http.StatusOK {
		t.Fatalf("login: status %d body %s", res.status, res.raw)
	}
	var login struct {
		Data loginData `json:"data"`
	}
	if err := json.Unmarshal(res.raw, &login); err != nil || login.Data.Token == "" {
		t.Fatalf("login data = %s (err %v)", res.raw, err)
	}

	res = ts.postJSON(t, "/add_device", `{"name":"cam","type":"camera","secret":"k"}`, login.Data.Token)
	if res.status != http.StatusOK {
		t.Fatalf("add_device with bearer: status %d body %s", res.status, res.raw)
	}
	if got := ts.count(t, "devices"); got != 1 {
		t.Errorf("devices = %d, want 1", got)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "carol", "pw")

	tests := []struct {
		name   string
		res    func() response
		status int
		code   string
	}{
		{"duplicate username", func() response {
			return ts.postForm(t, "/register", url.Values{"username": {"carol"}, "password": {"x"}, "confirm": {"x"}})
		}, http.StatusConflict, ErrCodeConflict},
		{"password mismatch", func() response {
			return ts.postForm(t, "/register", url.Values{"username": {"dave"}, "password": {"x"}, "confirm": {"y"}})
		}, http.StatusBadRequest, ErrCodeValidation},
		{"bad login", func() response {
			return ts.postForm(t, "/login", url.Values{"username": {"carol"}, "password": {"wrong"}})
		}, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"missing device", func() response {
			return ts.get(t, "/edit_device/999")
		}, http.StatusNotFound, ErrCodeNotFound},
		{"unparsable id", func() response {
			return ts.get(t, "/edit_device/abc")
		}, http.StatusNotFound, ErrCodeNotFound},
		{"empty device", func() response {
			return ts.postForm(t, "/add_device", url.Values{"name": {" "}, "secret": {""}})
		}, http.StatusBadRequest, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res()
			if res.status != tt.status {
				t.Errorf("status = %d, want %d (body %s)", res.status, tt.status, res.raw)
			}
			if res.body.Code != tt.code {
				t.Errorf("code = %q, want %q", res.body.Code, tt.code)
			}
			if res.body.OK {
				t.Error("ok = true, want false")
			}
		})
	}
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	res := ts.postJSON(t, "/login", `{"username":`, "")
	if res.status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.status)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "erin", "pw")

	u, _ := url.Parse(ts.URL) //nolint:errcheck // httptest URL is valid
	if len(ts.client.Jar.Cookies(u)) == 0 {
		t.Fatal("no session cookie after login")
	}

	ts.postForm(t, "/logout", nil)
	if got := ts.client.Jar.Cookies(u); len(got) != 0 {
		t.Errorf("cookies after logout = %v, want none", got)
	}
	if got := ts.count(t, "sessions"); got != 0 {
		t.Errorf("sessions = %d after logout, want 0", got)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	res := ts.get(t, "/health")
	if res.status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", res.status, res.raw)
	}
	var body struct {
		Status           string            `json:"status"`
		Components       map[string]string `json:"components"`
		WebSocketClients *int              `json:"websocket_clients"`
	}
	if err := json.Unmarshal(res.raw, &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Components["database"] != "ok" {
		t.Errorf("health = %+v", body)
	}
	if body.WebSocketClients == nil || *body.WebSocketClients != 0 {
		t.Errorf("websocket_clients = %v, want 0", body.WebSocketClients)
	}
}

func TestHealth_Degraded(t *testing.T) {
	ts := newTestServer(t, map[string]HealthChecker{"mqtt": failingCheck{}})
	res := ts.get(t, "/health")
	if res.status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.status)
	}
	if !strings.Contains(string(res.raw), "broker unreachable") {
		t.Errorf("body %s does not name the failing component", res.raw)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	res := ts.get(t, "/health")
	if res.header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil) //nolint:errcheck // Static URL
	req.Header.Set("X-Request-ID", "client-id-1")
	if got := ts.do(t, req).header.Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestWebSocket_RejectsAnonymous(t *testing.T) {
	ts := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err == nil {
		t.Fatal("Dial() succeeded without a session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}
}

func TestWebSocket_DeviceEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "frank", "pw")

	u, _ := url.Parse(ts.URL) //nolint:errcheck // httptest URL is valid
	header := http.Header{}
	for _, c := range ts.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]any{
		"type": WSTypeSubscribe, "id": "1",
		"payload": map[string]any{"channels": []string{ChannelDevices}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("subscribe ack = %+v (err %v)", ack, err)
	}

	ts.postForm(t, "/add_device", url.Values{"name": {"door"}, "type": {"lock"}, "secret": {"k"}})

	var frame struct {
		Type    string       `json:"type"`
		Channel string       `json:"channel"`
		Payload device.Event `json:"payload"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if frame.Type != WSTypeEvent || frame.Channel != ChannelDevices {
		t.Errorf("frame = %+v", frame)
	}
	if frame.Payload.Type != device.EventCreated || frame.Payload.Device.Name != "door" || frame.Payload.Actor != "frank" {
		t.Errorf("event = %+v", frame.Payload)
	}
}

func TestWebSocket_LogoutClosesFeed(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "hana", "pw")
	conn := ts.dialDevices(t)

	res := ts.postForm(t, "/logout", nil)
	if res.status != http.StatusOK {
		t.Fatalf("logout: status %d body %s", res.status, res.raw)
	}

	var frame WSMessage
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatalf("ReadJSON() after logout = %+v, want closed connection", frame)
	}
	waitForClients(t, ts.hub, 0)
}

func TestWebSocket_PurgedSessionGetsNoEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "ivan", "pw")
	conn := ts.dialDevices(t)

	// A second login replaces ivan's cookie in the jar; ivan's session row
	// then disappears the way the expiry purger removes it.
	ts.signup(t, "jade", "pw")
	if _, err := ts.db.Exec(`DELETE FROM sessions WHERE user_id = (SELECT id FROM users WHERE username = 'ivan')`); err != nil {
		t.Fatalf("deleting session: %v", err)
	}

	res := ts.postForm(t, "/add_device", url.Values{"name": {"gate"}, "type": {"lock"}, "secret": {"k"}})
	if res.status != http.StatusOK {
		t.Fatalf("add_device: status %d body %s", res.status, res.raw)
	}

	var frame WSMessage
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatalf("ended session received %+v, want closed connection", frame)
	}
	waitForClients(t, ts.hub, 0)
}

func TestStaleCookieDoesNotHideBearerToken(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.client.Jar = nil

	if res := ts.postJSON(t, "/register", `{"username":"kim","password":"pw","confirm":"pw"}`, ""); res.status != http.StatusOK {
		t.Fatalf("register: status %d body %s", res.status, res.raw)
	}
	res := ts.postJSON(t, "/login", `{"username":"kim","password":"pw"}`, "")
	var login struct {
		Data loginData `json:"data"`
	}
	if err := json.Unmarshal(res.raw, &login); err != nil || login.Data.Token == "" {
		t.Fatalf("login data = %s (err %v)", res.raw, err)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/dashboard", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: "test_session", Value: "left-over-from-an-old-login"})
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)

	res = ts.do(t, req)
	if res.status != http.StatusOK || res.body.View != console.ViewDashboard {
		t.Errorf("dashboard with stale cookie and bearer: status %d body %s", res.status, res.raw)
	}
}

func TestNewHub_RequiresSessionResolver(t *testing.T) {
	if _, err := NewHub(config.WebSocketConfig{}, nil, logging.Discard()); err == nil {
		t.Error("NewHub() without resolver error = nil, want error")
	}
}

func TestWebSocket_Ping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "gina", "pw")

	u, _ := url.Parse(ts.URL) //nolint:errcheck // httptest URL is valid
	header := http.Header{}
	for _, c := range ts.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]string{"type": WSTypePing, "id": "p"}); err != nil {
		t.Fatal(err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != WSTypePong || pong.ID != "p" {
		t.Errorf("pong = %+v (err %v)", pong, err)
	}

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatal(err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v (err %v)", msg, err)
	}
}

func TestWebSocket_Disabled(t *testing.T) {
	srv := &Server{logger: logging.Discard()}
	rec := httptest.NewRecorder()
	srv.handleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// dialDevices opens the event feed with the jar's current session and
// subscribes to the devices channel.
func (ts *testServer) dialDevices(t *testing.T) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(ts.URL) //nolint:errcheck // httptest URL is valid
	header := http.Header{}
	for _, c := range ts.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]any{
		"type": WSTypeSubscribe, "id": "sub",
		"payload": map[string]any{"channels": []string{ChannelDevices}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != WSTypeResponse {
		t.Fatalf("subscribe ack = %+v (err %v)", ack, err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func wsURL(ts *testServer) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}
