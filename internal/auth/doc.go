// Package auth provides credential hashing, account storage and the
// session guard for the device console.
//
// It implements:
//   - Argon2id hashing for user passwords and device secrets
//   - An account store whose duplicate check is the UNIQUE constraint
//   - Signed HS256 session tokens backed by a server-side session table
//   - An explicit per-request Session value (anonymous or authenticated)
//
// A session token is valid only while its server-side record exists and
// has not expired, so logout takes effect immediately.
package auth
