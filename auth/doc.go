// Package auth is the credential and session core of the application.
//
// It owns account registration, password login with a failed-attempt
// lockout, password reset by single-use token, and profile mutation.
// Everything else in the application (diary entries, file uploads, view
// rendering) is a collaborator that talks to this package through the
// Service, SessionManager, and guard middleware.
//
// Sessions:
//   - SessionManager keeps a signed, denormalized snapshot of the account's
//     public profile in a cookie. The snapshot is a read cache, not a source
//     of truth; callers re-sign-in after any profile mutation so staleness is
//     bounded to "since last write".
//
// Failure taxonomy:
//   - Operations report expected business outcomes as typed errors
//     (AccountLockedError, InvalidCredentialsError, the Err* sentinels) so
//     callers switch on types instead of matching message strings. Storage
//     faults are logged with their cause and surface as a generic
//     PersistenceError that never leaks internal state.
package auth
