package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/device-console/internal/audit"
	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/device"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
)

// auditSource tags every entry the console records.
const auditSource = "console"

// Auditor receives audit entries. *audit.Recorder satisfies it.
type Auditor interface {
	Record(entry *audit.AuditLog)
}

// EventPublisher fans a device event out to a transport.
type EventPublisher interface {
	PublishDeviceEvent(ctx context.Context, ev device.Event) error
}

// Metrics counts authentication and device events.
type Metrics interface {
	RecordAuthEvent(event string)
	RecordDeviceEvent(action string)
}

// Deps holds the dependencies required by the Service.
type Deps struct {
	Users   auth.UserRepository
	Devices device.Repository
	Guard   *auth.Guard

	// Optional side channels.
	Audit      Auditor
	AuditLogs  audit.Repository
	Publishers []EventPublisher
	Metrics    Metrics

	Logger *logging.Logger
}

// Service implements the console's operations.
//
// Thread Safety:
//   - All methods are safe for concurrent use; per-request state lives in
//     the auth.Session argument.
type Service struct {
	users      auth.UserRepository
	devices    device.Repository
	guard      *auth.Guard
	auditor    Auditor
	auditLogs  audit.Repository
	publishers []EventPublisher
	metrics    Metrics
	logger     *logging.Logger
}

// operation is the shape every guarded console operation takes.
type operation func(ctx context.Context, sess auth.Session) Result

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Users == nil {
		return nil, errors.New("user repository is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("device repository is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("session guard is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Service{
		users:      deps.Users,
		devices:    deps.Devices,
		guard:      deps.Guard,
		auditor:    deps.Audit,
		auditLogs:  deps.AuditLogs,
		publishers: deps.Publishers,
		metrics:    metrics,
		logger:     logger.With("component", "console"),
	}, nil
}

// guarded wraps fn so that anonymous sessions are turned away before fn
// runs.
func (s *Service) guarded(fn operation) operation {
	return func(ctx context.Context, sess auth.Session) Result {
		if !sess.Authenticated() {
			return failure(ErrUnauthenticated, "", PathLogin, flash(FlashDanger, msgLoginRequired))
		}
		return fn(ctx, sess)
	}
}

// Register creates an account. Surrounding whitespace is trimmed from all
// three fields.
func (s *Service) Register(ctx context.Context, _ auth.Session, username, password, confirm string) Result {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	confirm = strings.TrimSpace(confirm)

	if username == "" || password == "" {
		return failure(ErrValidation, ViewRegister, "", flash(FlashWarning, msgFillAllFields))
	}
	if password != confirm {
		return failure(ErrValidation, ViewRegister, "", flash(FlashDanger, msgPasswordMismatch))
	}
	if !auth.IsValidUsername(username) {
		return failure(ErrValidation, ViewRegister, "", flash(FlashWarning, msgBadUsername))
	}

	digest, err := auth.HashPassword(password)
	if err != nil {
		return s.storageFailure("register", ViewRegister, err)
	}

	user := &auth.User{Username: username, PasswordHash: digest}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			return failure(err, ViewRegister, "", flash(FlashWarning, msgUsernameExists))
		}
		return s.storageFailure("register", ViewRegister, err)
	}

	s.logger.Info("account registered", "user_id", user.ID)
	s.record(&audit.AuditLog{
		Action:     audit.ActionRegister,
		EntityType: audit.EntityUser,
		EntityID:   strconv.FormatInt(user.ID, 10),
		UserID:     user.ID,
		Username:   user.Username,
	})
	s.metrics.RecordAuthEvent(audit.ActionRegister)

	return success(PathLogin, flash(FlashSuccess, msgAccountCreated))
}

// Login checks credentials and, on success, returns the new session in
// Result.Session. Unknown usernames and wrong passwords produce the same
// message.
func (s *Service) Login(ctx context.Context, _ auth.Session, username, password string) Result {
	login, err := s.guard.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.record(s.failedLoginEntry(ctx, username))
			s.metrics.RecordAuthEvent(audit.ActionLoginFailed)
			return failure(err, ViewLogin, "", flash(FlashDanger, msgInvalidLogin))
		}
		return s.storageFailure("login", ViewLogin, err)
	}

	s.record(&audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntitySession,
		EntityID:   login.Session.ID(),
		UserID:     login.Session.UserID(),
		Username:   login.Session.Username(),
	})
	s.metrics.RecordAuthEvent(audit.ActionLogin)

	return Result{OK: true, Redirect: PathDashboard, Session: login}
}

// failedLoginEntry names the account only when username belongs to one.
// Anything else typed into the username field may be a password and is
// not stored.
func (s *Service) failedLoginEntry(ctx context.Context, username string) *audit.AuditLog {
	entry := &audit.AuditLog{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntitySession,
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Warn("failed login lookup", "error", err)
		}
		return entry
	}
	entry.UserID = user.ID
	entry.Username = user.Username
	return entry
}

// Logout ends the current session. It succeeds for anonymous sessions
// too.
func (s *Service) Logout(ctx context.Context, sess auth.Session) Result {
	if err := s.guard.Logout(ctx, sess.Token()); err != nil {
		res := s.storageFailure("logout", "", err)
		res.Redirect = PathLogin
		res.EndSession = true
		return res
	}

	if sess.Authenticated() {
		s.record(&audit.AuditLog{
			Action:     audit.ActionLogout,
			EntityType: audit.EntitySession,
			EntityID:   sess.ID(),
			UserID:     sess.UserID(),
			Username:   sess.Username(),
		})
		s.metrics.RecordAuthEvent(audit.ActionLogout)
	}

	res := success(PathLogin, flash(FlashInfo, msgLoggedOut))
	res.EndSession = true
	return res
}

// Dashboard returns the landing page for a logged-in user.
func (s *Service) Dashboard(ctx context.Context, sess auth.Session) Result {
	return s.guarded(func(ctx context.Context, sess auth.Session) Result {
		count, err := s.devices.Count(ctx)
		if err != nil {
			return s.storageFailure("dashboard", "", err)
		}
		return render(ViewDashboard, DashboardData{
			Username:    sess.Username(),
			DeviceCount: count,
		})
	})(ctx, sess)
}

// Tips returns the static security advice page.
func (s *Service) Tips(ctx context.Context, sess auth.Session) Result {
	return s.guarded(func(context.Context, auth.Session) Result {
		return render(ViewTips, securityTips)
	})(ctx, sess)
}

// ListDevices returns every device as a View, in insertion order.
func (s *Service) ListDevices(ctx context.Context, sess auth.Session) Result {
	return s.guarded(func(ctx context.Context, _ auth.Session) Result {
		devices, err := s.devices.List(ctx)
		if err != nil {
			return s.storageFailure("list devices", "", err)
		}
		return render(ViewDevices, device.Views(devices))
	})(ctx, sess)
}

// GetDevice returns one device for the edit form.
func (s *Service) GetDevice(ctx context.Context, sess auth.Session, id int64) Result {
	return s.guarded(func(ctx context.Context, _ auth.Session) Result {
		d, res, ok := s.lookup(ctx, "get device", id)
		if !ok {
			return res
		}
		return render(ViewEdit, d.View())
	})(ctx, sess)
}

// AddDeviceForm returns the empty add-device view.
func (s *Service) AddDeviceForm(ctx context.Context, sess auth.Session) Result {
	return s.guarded(func(context.Context, auth.Session) Result {
		return render(ViewAddDevice, nil)
	})(ctx, sess)
}

// AddDevice stores a new device with its secret hashed.
func (s *Service) AddDevice(ctx context.Context, sess auth.Session, in device.Input) Result {
	return s.guarded(func(ctx context.Context, sess auth.Session) Result {
		in = in.Normalise()
		if in.Name == "" || in.Secret == "" {
			return failure(ErrValidation, ViewAddDevice, "", flash(FlashWarning, msgDeviceFields))
		}
		if res, ok := validateLabels(ViewAddDevice, in); !ok {
			return res
		}

		digest, err := auth.HashSecret(in.Secret)
		if err != nil {
			return s.storageFailure("add device", ViewAddDevice, err)
		}

		d := &device.Device{Name: in.Name, Type: in.Type, SecretHash: digest}
		if err := s.devices.Create(ctx, d); err != nil {
			return s.storageFailure("add device", ViewAddDevice, err)
		}

		s.deviceChanged(ctx, sess, audit.ActionCreate, device.EventCreated, d)
		return success(PathDevices, flash(FlashSuccess, msgDeviceAdded))
	})(ctx, sess)
}

// EditDevice overwrites a device's name and type. A non-blank secret is
// hashed and replaces the stored digest; a blank one keeps it.
func (s *Service) EditDevice(ctx context.Context, sess auth.Session, id int64, in device.Input) Result {
	return s.guarded(func(ctx context.Context, sess auth.Session) Result {
		d, res, ok := s.lookup(ctx, "edit device", id)
		if !ok {
			return res
		}

		in = in.Normalise()
		if in.Name == "" {
			r := failure(ErrValidation, ViewEdit, "", flash(FlashWarning, msgDeviceName))
			r.Data = d.View()
			return r
		}
		if r, ok := validateLabels(ViewEdit, in); !ok {
			r.Data = d.View()
			return r
		}

		d.Name = in.Name
		d.Type = in.Type
		if strings.TrimSpace(in.Secret) != "" {
			digest, err := auth.HashSecret(in.Secret)
			if err != nil {
				return s.storageFailure("edit device", ViewEdit, err)
			}
			d.SecretHash = digest
		}

		if err := s.devices.Update(ctx, d); err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				return failure(err, "", PathDevices, flash(FlashDanger, msgDeviceNotFound))
			}
			return s.storageFailure("edit device", ViewEdit, err)
		}

		s.deviceChanged(ctx, sess, audit.ActionUpdate, device.EventUpdated, d)
		return success(PathDevices, flash(FlashSuccess, msgDeviceUpdated))
	})(ctx, sess)
}

// DeleteDevice removes a device. Deleting an absent id succeeds.
func (s *Service) DeleteDevice(ctx context.Context, sess auth.Session, id int64) Result {
	return s.guarded(func(ctx context.Context, sess auth.Session) Result {
		existing, err := s.devices.GetByID(ctx, id)
		if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
			return s.storageFailure("delete device", "", err)
		}

		if err := s.devices.Delete(ctx, id); err != nil {
			return s.storageFailure("delete device", "", err)
		}

		if existing != nil {
			s.deviceChanged(ctx, sess, audit.ActionDelete, device.EventDeleted, existing)
		}
		return success(PathDevices, flash(FlashInfo, msgDeviceDeleted))
	})(ctx, sess)
}

// AuditTrail returns a page of audit entries, newest first.
func (s *Service) AuditTrail(ctx context.Context, sess auth.Session, filter audit.Filter) Result {
	return s.guarded(func(ctx context.Context, _ auth.Session) Result {
		if s.auditLogs == nil {
			return render(ViewAudit, &audit.ListResult{Logs: []audit.AuditLog{}})
		}
		page, err := s.auditLogs.List(ctx, filter)
		if err != nil {
			return s.storageFailure("audit trail", "", err)
		}
		return render(ViewAudit, page)
	})(ctx, sess)
}

// lookup fetches a device, turning a missing id into the not-found
// result.
func (s *Service) lookup(ctx context.Context, op string, id int64) (*device.Device, Result, bool) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, failure(err, "", PathDevices, flash(FlashDanger, msgDeviceNotFound)), false
		}
		return nil, s.storageFailure(op, "", err), false
	}
	return d, Result{}, true
}

// validateLabels checks name and type lengths.
func validateLabels(view string, in device.Input) (Result, bool) {
	if err := device.ValidateName(in.Name); err != nil {
		msg := fmt.Sprintf("Device name must be at most %d characters.", device.MaxNameLength)
		return failure(err, view, "", flash(FlashWarning, msg)), false
	}
	if err := device.ValidateType(in.Type); err != nil {
		msg := fmt.Sprintf("Device type must be at most %d characters.", device.MaxTypeLength)
		return failure(err, view, "", flash(FlashWarning, msg)), false
	}
	return Result{}, true
}

// storageFailure logs err and returns the generic failure result.
func (s *Service) storageFailure(op, view string, err error) Result {
	s.logger.Error("console operation failed", "operation", op, "error", err)
	return failure(err, view, "", flash(FlashDanger, msgStorageFailure))
}

// deviceChanged feeds the audit trail, event publishers and metrics after a
// successful device write. Failures here are logged and never surface.
func (s *Service) deviceChanged(ctx context.Context, sess auth.Session, action, eventType string, d *device.Device) {
	view := d.View()

	s.record(&audit.AuditLog{
		Action:     action,
		EntityType: audit.EntityDevice,
		EntityID:   strconv.FormatInt(d.ID, 10),
		UserID:     sess.UserID(),
		Username:   sess.Username(),
		Details:    map[string]any{"name": d.Name, "type": d.Type},
	})

	ev := device.NewEvent(eventType, view, sess.Username())
	for _, p := range s.publishers {
		if err := p.PublishDeviceEvent(ctx, ev); err != nil {
			s.logger.Warn("publishing device event failed",
				"event", eventType,
				"device_id", d.ID,
				"error", err,
			)
		}
	}

	s.metrics.RecordDeviceEvent(action)
}

func (s *Service) record(entry *audit.AuditLog) {
	if s.auditor == nil {
		return
	}
	entry.Source = auditSource
	s.auditor.Record(entry)
}

type noopMetrics struct{}

func (noopMetrics) RecordAuthEvent(string)   {}
func (noopMetrics) RecordDeviceEvent(string) {}
