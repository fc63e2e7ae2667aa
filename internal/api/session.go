package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/device-console/internal/auth"
)

const defaultCookieName = "devconsole_session"

// tokensFromRequest returns the candidate session tokens in the order they
// are tried: an explicit Authorization: Bearer header first, then the
// cookie.
func (s *Server) tokensFromRequest(r *http.Request) []string {
	var tokens []string
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if c, err := r.Cookie(s.sessCfg.CookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	return tokens
}

// setSessionCookie hands the login token to the browser.
func (s *Server) setSessionCookie(w http.ResponseWriter, login *auth.Login) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessCfg.CookieName,
		Value:    login.Token,
		Path:     "/",
		Expires:  login.ExpiresAt,
		MaxAge:   int(time.Until(login.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.sessCfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the browser's session cookie.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessCfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.sessCfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
