package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Lockout and reset-token policy defaults.
const (
	DefaultMaxLoginAttempts = 3
	DefaultLockoutDuration  = 15 * time.Minute
	DefaultResetTokenTTL    = time.Hour
)

// MsgResetRequested is the only caller-visible outcome of ForgotPassword.
// It is identical whether or not the email exists, so the operation can
// never be used to enumerate accounts.
const MsgResetRequested = "If the email exists, a password reset link has been sent."

// Service orchestrates registration, login, password reset, and profile
// mutation. It is the only component that mutates credential records.
type Service struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	tokens   TokenGenerator
	notifier ResetNotifier
	logger   Logger
	now      nowFunc

	maxAttempts  int
	lockoutFor   time.Duration
	resetTTL     time.Duration
	useHashedIDs bool
}

// NewService returns a Service with the default lockout policy of three
// failed attempts and a fifteen minute lockout, and reset tokens valid for
// one hour.
func NewService(repo RepositoryManager, hasher PasswordHasher) *Service {
	s := &Service{
		repo:        repo,
		hasher:      hasher,
		tokens:      NewRandomTokenGenerator(),
		logger:      defLogger{},
		now:         time.Now,
		maxAttempts: DefaultMaxLoginAttempts,
		lockoutFor:  DefaultLockoutDuration,
		resetTTL:    DefaultResetTokenTTL,
	}
	s.notifier = logNotifier{logger: s.logger}
	return s
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) WithTokenGenerator(tokens TokenGenerator) *Service {
	if tokens != nil {
		s.tokens = tokens
	}
	return s
}

// WithNotifier sets the collaborator that delivers reset tokens out of band.
func (s *Service) WithNotifier(notifier ResetNotifier) *Service {
	if notifier != nil {
		s.notifier = notifier
	}
	return s
}

// WithClock pins the time source, mostly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithLockoutPolicy(maxAttempts int, lockoutFor time.Duration) *Service {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockoutFor > 0 {
		s.lockoutFor = lockoutFor
	}
	return s
}

func (s *Service) WithResetTokenTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.resetTTL = ttl
	}
	return s
}

// WithDeterministicIDs derives account ids from the registration email
// instead of random UUIDs.
func (s *Service) WithDeterministicIDs(enabled bool) *Service {
	s.useHashedIDs = enabled
	return s
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Username) == "" {
		return &ValidationError{Field: "username", Reason: "required"}
	}
	if strings.TrimSpace(in.Email) == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	if in.Password == "" {
		return &ValidationError{Field: "password", Reason: "required"}
	}
	return nil
}

// Register creates a new active account. Duplicate usernames and emails are
// rejected before anything persists; the unique indexes on both columns make
// the check hold even against a concurrent registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var profile *Profile

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := s.repo.Users().UsernameTakenTx(ctx, tx, in.Username)
		if err != nil {
			return s.storeFailure("registration", err)
		}
		if taken {
			return ErrDuplicateUsername
		}

		taken, err = s.repo.Users().EmailTakenTx(ctx, tx, in.Email, uuid.Nil)
		if err != nil {
			return s.storeFailure("registration", err)
		}
		if taken {
			return ErrDuplicateEmail
		}

		digest, err := s.hasher.Hash(in.Password)
		if err != nil {
			return &ValidationError{Field: "password", Reason: err.Error()}
		}

		now := s.now()
		user := &User{
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: digest,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			CreatedAt:    &now,
		}

		if s.useHashedIDs {
			if id, err := hashid.NewUUID(in.Email); err == nil {
				user.ID = id
			}
		}

		created, err := s.repo.Users().RegisterTx(ctx, tx, user)
		if err != nil {
			return s.storeFailure("registration", err)
		}

		profile = created.Profile()
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "username", in.Username)
	return profile, nil
}

// Login verifies a username/password pair against the lockout state machine.
// The whole read-modify-write runs in one store transaction so concurrent
// attempts against the same account serialize on the writer instead of
// racing on the counter.
func (s *Service) Login(ctx context.Context, username, password string) (*Profile, error) {
	var profile *Profile

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return &InvalidCredentialsError{AttemptsLeft: -1}
			}
			return s.storeFailure("login", err)
		}

		now := s.now()

		if user.Locked(now) {
			return &AccountLockedError{Until: *user.LockoutUntil, Observed: now}
		}

		match, err := s.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			// an undecodable stored digest reads as a mismatch
			s.logger.Warn("password verify error", "username", username, "error", err)
			match = false
		}

		if !match {
			attempts := user.LoginAttempts + 1

			if attempts >= s.maxAttempts {
				until := now.Add(s.lockoutFor)
				if err := s.repo.Users().SaveLoginFailureTx(ctx, tx, user.ID, attempts, &until); err != nil {
					return s.storeFailure("login", err)
				}
				return &AccountLockedError{Until: until, Observed: now, Triggered: true}
			}

			if err := s.repo.Users().SaveLoginFailureTx(ctx, tx, user.ID, attempts, user.LockoutUntil); err != nil {
				return s.storeFailure("login", err)
			}
			return &InvalidCredentialsError{AttemptsLeft: s.maxAttempts - attempts}
		}

		if err := s.repo.Users().SaveLoginSuccessTx(ctx, tx, user.ID, now); err != nil {
			return s.storeFailure("login", err)
		}

		user.LoginAttempts = 0
		user.LockoutUntil = nil
		user.LastLoginAt = &now
		profile = user.Profile()
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("login successful", "username", username)
	return profile, nil
}

// ForgotPassword issues a reset token when the email belongs to an account.
// The caller-visible outcome is MsgResetRequested either way; only the
// notifier learns whether anything happened.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	var token string
	var found bool

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return s.storeFailure("password reset request", err)
		}

		token, err = s.tokens.Generate()
		if err != nil {
			s.logger.Error("reset token generation failed", "error", err)
			return &PersistenceError{Op: "password reset request"}
		}

		expires := s.now().Add(s.resetTTL)
		if err := s.repo.Users().StoreResetTokenTx(ctx, tx, user.ID, HashToken(token), expires); err != nil {
			return s.storeFailure("password reset request", err)
		}

		found = true
		return nil
	})

	if err != nil {
		return err
	}

	if found {
		if err := s.notifier.NotifyPasswordReset(email, token); err != nil {
			s.logger.Warn("reset notification failed", "error", err)
		}
	}

	return nil
}

// ResetPassword consumes an active reset token: the password hash is
// replaced, both token fields clear atomically, and any lockout lifts.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return &ValidationError{Field: "password", Reason: "required"}
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().GetByActiveResetTokenTx(ctx, tx, token, s.now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidResetToken
			}
			return s.storeFailure("password reset", err)
		}

		// the store looks up by hash; the returned row is still held to
		// a constant-time match on the presented token
		if user.ResetTokenHash == nil || !TokensEqual(token, *user.ResetTokenHash) {
			return ErrInvalidResetToken
		}

		digest, err := s.hasher.Hash(newPassword)
		if err != nil {
			return &ValidationError{Field: "password", Reason: err.Error()}
		}

		if err := s.repo.Users().CompletePasswordResetTx(ctx, tx, user.ID, digest); err != nil {
			return s.storeFailure("password reset", err)
		}

		s.logger.Info("password reset completed", "username", user.Username)
		return nil
	})
}

// Profile returns the public projection of an account.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	user, err := s.repo.Users().GetByUserID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, s.storeFailure("profile lookup", err)
	}

	return user.Profile(), nil
}

// UpdateProfileInput carries a partial profile mutation; empty fields are
// left untouched.
type UpdateProfileInput struct {
	FirstName string
	LastName  string
	Email     string
}

// UpdateProfile mutates only the supplied fields. A changed email is checked
// for uniqueness against every other account before anything persists.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in UpdateProfileInput) (*Profile, error) {
	var profile *Profile

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().GetByUserIDTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return s.storeFailure("profile update", err)
		}

		if in.Email != "" && in.Email != user.Email {
			taken, err := s.repo.Users().EmailTakenTx(ctx, tx, in.Email, user.ID)
			if err != nil {
				return s.storeFailure("profile update", err)
			}
			if taken {
				return ErrDuplicateEmail
			}
			user.Email = in.Email
		}

		if in.FirstName != "" {
			user.FirstName = in.FirstName
		}
		if in.LastName != "" {
			user.LastName = in.LastName
		}

		if err := s.repo.Users().SaveProfileTx(ctx, tx, user); err != nil {
			return s.storeFailure("profile update", err)
		}

		profile = user.Profile()
		return nil
	})

	if err != nil {
		return nil, err
	}

	return profile, nil
}

// UpdateProfilePicture sets or clears the stored asset path. The binary file
// lifecycle belongs to the AvatarStore collaborator; callers must only
// invoke this after the asset write durably succeeded.
func (s *Service) UpdateProfilePicture(ctx context.Context, id uuid.UUID, path *string) (*Profile, error) {
	var profile *Profile

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().GetByUserIDTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return s.storeFailure("profile picture update", err)
		}

		if err := s.repo.Users().SetProfilePictureTx(ctx, tx, user.ID, path); err != nil {
			return s.storeFailure("profile picture update", err)
		}

		user.ProfilePicture = path
		profile = user.Profile()
		return nil
	})

	if err != nil {
		return nil, err
	}

	return profile, nil
}

// storeFailure logs the underlying cause and converts it to the generic
// persistence failure handed outward. Diagnostic detail stays in the logs.
func (s *Service) storeFailure(op string, cause error) error {
	rich := goerrors.Wrap(cause, goerrors.CategoryInternal, op+" storage failure")
	s.logger.Error("storage failure", "op", op, "error", rich)
	return &PersistenceError{Op: op}
}
