package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/device-console/internal/infrastructure/logging"
)

// MinSecretLength is the shortest signing secret NewGuard accepts.
const MinSecretLength = 32

// GuardConfig configures session issuance.
type GuardConfig struct {
	Secret string
	TTL    time.Duration
}

// Login is the outcome of a successful credential check.
type Login struct {
	// Token is handed to the client; only its digest is stored.
	Token     string
	Session   Session
	ExpiresAt time.Time
}

// Guard moves a client between the Anonymous and Authenticated states.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Guard struct {
	users    UserRepository
	sessions SessionRepository
	secret   []byte
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// NewGuard creates a Guard. The secret must be at least MinSecretLength bytes.
func NewGuard(users UserRepository, sessions SessionRepository, cfg GuardConfig, logger *logging.Logger) (*Guard, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrWeakSecret, MinSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Guard{
		users:    users,
		sessions: sessions,
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		logger:   logger.With("component", "guard"),
		now:      time.Now,
	}, nil
}

// Login verifies the credentials and opens a fresh session.
//
// An unknown username and a wrong password both return
// ErrInvalidCredentials; the distinction is only logged at debug level.
// Storage failures are returned wrapped.
func (g *Guard) Login(ctx context.Context, username, password string) (*Login, error) {
	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Keep the response time close to the wrong-password path.
			VerifySecret(password, g.dummy()) //nolint:errcheck // result unused
			g.logger.Debug("login rejected", "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		reason := "wrong password"
		if err != nil {
			reason = "unreadable password digest"
		}
		g.logger.Debug("login rejected", "reason", reason, "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	now := g.now().UTC().Truncate(time.Second)
	record := &SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(g.ttl),
		CreatedAt: now,
	}

	token, err := IssueSessionToken(user.ID, record.ID, g.secret, now, g.ttl)
	if err != nil {
		return nil, err
	}
	record.TokenHash = HashToken(token)

	if err := g.sessions.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	return &Login{
		Token: token,
		Session: Session{
			userID:    user.ID,
			username:  user.Username,
			sessionID: record.ID,
			token:     token,
		},
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Logout ends the session identified by token. It is idempotent: empty,
// malformed and unknown tokens are accepted. Only storage failures are
// returned.
func (g *Guard) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := g.sessions.DeleteByTokenHash(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

// Resolve turns a client token into the request's Session. Anything short
// of a valid signature, an unexpired server-side record and an existing
// account resolves to Anonymous.
func (g *Guard) Resolve(ctx context.Context, token string) Session {
	if token == "" {
		return Anonymous()
	}

	now := g.now()
	claims, err := ParseSessionToken(token, g.secret, now)
	if err != nil {
		g.logger.Debug("session token rejected", "error", err)
		return Anonymous()
	}

	record, err := g.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			g.logger.Warn("session lookup failed", "error", err)
		}
		return Anonymous()
	}
	if record.ID != claims.SessionID || record.Expired(now) {
		return Anonymous()
	}

	userID, err := claims.UserID()
	if err != nil || userID != record.UserID {
		return Anonymous()
	}

	user, err := g.users.GetByID(ctx, record.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			g.logger.Warn("session user lookup failed", "error", err)
		}
		return Anonymous()
	}

	return Session{
		userID:    user.ID,
		username:  user.Username,
		sessionID: record.ID,
		token:     token,
	}
}

// PurgeExpired deletes expired sessions and returns how many were removed.
func (g *Guard) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := g.sessions.DeleteExpired(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return n, nil
}

// RunPurger calls PurgeExpired every interval until ctx is cancelled.
func (g *Guard) RunPurger(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := g.PurgeExpired(ctx)
			if err != nil {
				g.logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				g.logger.Debug("expired sessions purged", "count", n)
			}
		}
	}
}

// dummy returns a digest used to equalise timing for unknown usernames.
func (g *Guard) dummy() string {
	g.dummyOnce.Do(func() {
		d, err := HashSecret(uuid.NewString())
		if err != nil {
			d = ""
		}
		g.dummyDigest = d
	})
	return g.dummyDigest
}
