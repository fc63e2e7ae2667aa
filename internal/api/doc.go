// Package api serves the device console over HTTP and WebSocket.
//
// This package provides:
//   - Form and JSON endpoints for registration, login and device management
//   - Cookie or bearer-token sessions resolved per request
//   - A Renderer seam; JSONRenderer is the default presentation
//   - A WebSocket hub that streams device lifecycle events
//   - Middleware stack (request ID, logging, recovery, body limit, timeout)
//
// # Architecture
//
// Handlers only translate HTTP into console.Service calls and hand the
// resulting console.Result to the Renderer. Guarding, validation and
// storage all live below this package.
//
//	browser/client ──HTTP──▶ api.Server ──▶ console.Service ──▶ stores
//	                 ◀─WS── api.Hub ◀── device events
//
// # Sessions
//
// Login sets an HttpOnly, SameSite=Lax cookie carrying the session token.
// Clients that cannot hold cookies may send the same token as
// "Authorization: Bearer <token>". Either way the token is checked against
// the server-side session table on every request.
package api
