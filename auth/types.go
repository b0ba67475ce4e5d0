package auth

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger takes a message plus alternating key/value attributes, the slog
// convention, so a go-logger instance drops in directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordHasher is the one-way transform used to store and verify
// credentials. Implementations must never leak the plaintext in the digest.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// TokenGenerator produces opaque, URL-safe password-reset tokens. It must be
// safe for concurrent use by simultaneous reset requests.
type TokenGenerator interface {
	Generate() (string, error)
}

// ResetNotifier delivers a freshly issued reset token to the account holder,
// typically by email. The token is only ever handed out here; the store keeps
// a hash.
type ResetNotifier interface {
	NotifyPasswordReset(email, token string) error
}

// AvatarStore is the file-storage collaborator behind profile pictures. The
// caller persists the asset first and only then updates the account metadata,
// rolling the asset back if the metadata write fails.
type AvatarStore interface {
	Validate(filename string, size int64) error
	Save(owner string, filename string, r io.Reader) (string, error)
	Remove(path string) error
}

type defLogger struct {
	out io.Writer
}

func (d defLogger) Error(msg string, args ...any) { d.log("ERR", msg, args) }

func (d defLogger) Warn(msg string, args ...any) { d.log("WRN", msg, args) }

func (d defLogger) Info(msg string, args ...any) { d.log("INF", msg, args) }

func (d defLogger) Debug(msg string, args ...any) { d.log("DBG", msg, args) }

func (d defLogger) log(level, msg string, args []any) {
	out := d.out
	if out == nil {
		out = os.Stdout
	}

	var b strings.Builder
	b.WriteString("[" + level + "] AUTH " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v=", args[i])
		}
	}
	fmt.Fprintln(out, b.String())
}

type logNotifier struct {
	logger Logger
}

func (n logNotifier) NotifyPasswordReset(email, token string) error {
	n.logger.Info("password reset requested", "email", email, "link", "/reset-password/"+token)
	return nil
}

// nowFunc lets tests pin the clock.
type nowFunc func() time.Time
