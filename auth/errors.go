package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel business failures. Operations return these (or the typed errors
// below) for every expected condition; the call stack never unwinds for a
// business outcome.
var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrNoEmptyString     = errors.New("value cannot be an empty string")
)

// AccountLockedError rejects a login attempt while the lockout window is
// open. Triggered marks the failure that opened the window.
type AccountLockedError struct {
	Until     time.Time
	Observed  time.Time
	Triggered bool
}

func (e *AccountLockedError) Error() string {
	if e.Triggered {
		return fmt.Sprintf(
			"account locked due to multiple failed login attempts, try again in %d minutes",
			e.RemainingMinutes(),
		)
	}
	return fmt.Sprintf("account is locked, try again in %d minutes", e.RemainingMinutes())
}

// RemainingMinutes is the lockout time left, rounded up so the caller never
// under-reports the wait.
func (e *AccountLockedError) RemainingMinutes() int {
	mins := math.Ceil(e.Until.Sub(e.Observed).Minutes())
	if mins < 0 {
		return 0
	}
	return int(mins)
}

// InvalidCredentialsError covers both an unknown username and a wrong
// password with the same outward message, so login results never disclose
// which accounts exist. AttemptsLeft is negative when the account was not
// found and there is no counter to report.
type InvalidCredentialsError struct {
	AttemptsLeft int
}

func (e *InvalidCredentialsError) Error() string {
	if e.AttemptsLeft >= 0 {
		return fmt.Sprintf("invalid username or password, %d attempts remaining", e.AttemptsLeft)
	}
	return "invalid username or password"
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError stands in for any storage fault. The underlying cause is
// logged where the fault is caught and deliberately not carried outward.
type PersistenceError struct {
	Op string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed due to a storage error, please try again", e.Op)
}

// IsBusinessError reports whether err belongs to the expected failure
// taxonomy, as opposed to a storage or programming fault.
func IsBusinessError(err error) bool {
	var locked *AccountLockedError
	var creds *InvalidCredentialsError
	var invalid *ValidationError
	switch {
	case errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrInvalidResetToken):
		return true
	case errors.As(err, &locked), errors.As(err, &creds), errors.As(err, &invalid):
		return true
	}
	return false
}
