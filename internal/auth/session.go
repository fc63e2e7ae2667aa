package auth

import "context"

// Session is the per-request session context. The zero value is the
// anonymous session; only Guard produces authenticated ones.
type Session struct {
	userID    int64
	username  string
	sessionID string
	token     string
}

// Anonymous returns an unauthenticated session.
func Anonymous() Session {
	return Session{}
}

// Authenticated reports whether the session belongs to a logged-in user.
func (s Session) Authenticated() bool {
	return s.sessionID != "" && s.userID != 0
}

// UserID returns the account id, or 0 for anonymous sessions.
func (s Session) UserID() int64 { return s.userID }

// Username returns the account name, or "" for anonymous sessions.
func (s Session) Username() string { return s.username }

// ID returns the server-side session id.
func (s Session) ID() string { return s.sessionID }

// Token returns the raw token the session was resolved from.
func (s Session) Token() string { return s.token }

type contextKey int

const sessionKey contextKey = iota

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored in ctx, or Anonymous.
func SessionFromContext(ctx context.Context) Session {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok {
		return Anonymous()
	}
	return s
}
