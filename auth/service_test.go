package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotterapp/jotter/auth"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedUser(t *testing.T, hasher auth.PasswordHasher, username, email, password string) *auth.User {
	t.Helper()

	digest, err := hasher.Hash(password)
	require.NoError(t, err)

	return &auth.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
	}
}

func TestRegister(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")

	t.Run("creates an account and returns its profile", func(t *testing.T) {
		repo := newMemRepo()
		svc := auth.NewService(repo, hasher)

		profile, err := svc.Register(context.Background(), auth.RegisterInput{
			Username:  "amelie",
			Email:     "amelie@example.com",
			Password:  "s3cret-enough",
			FirstName: "Amelie",
		})

		require.NoError(t, err)
		assert.Equal(t, "amelie", profile.Username)
		assert.Equal(t, "amelie@example.com", profile.Email)
		assert.NotZero(t, profile.ID)

		stored := repo.users.byUsername("amelie")
		require.NotNil(t, stored)
		assert.NotEqual(t, "s3cret-enough", stored.PasswordHash)
	})

	t.Run("rejects a duplicate username", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "pw-number-one"))
		svc := auth.NewService(repo, hasher)

		_, err := svc.Register(context.Background(), auth.RegisterInput{
			Username: "amelie",
			Email:    "other@example.com",
			Password: "pw-number-two",
		})

		assert.ErrorIs(t, err, auth.ErrDuplicateUsername)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "pw-number-one"))
		svc := auth.NewService(repo, hasher)

		_, err := svc.Register(context.Background(), auth.RegisterInput{
			Username: "someone",
			Email:    "amelie@example.com",
			Password: "pw-number-two",
		})

		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		svc := auth.NewService(newMemRepo(), hasher)

		_, err := svc.Register(context.Background(), auth.RegisterInput{
			Username: "amelie",
		})

		var verr *auth.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestLogin(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("succeeds with valid credentials", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse"))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		profile, err := svc.Login(context.Background(), "amelie", "correct-horse")

		require.NoError(t, err)
		assert.Equal(t, "amelie", profile.Username)

		stored := repo.users.byUsername("amelie")
		require.NotNil(t, stored.LastLoginAt)
		assert.Equal(t, now, *stored.LastLoginAt)
	})

	t.Run("hides whether the username exists", func(t *testing.T) {
		svc := auth.NewService(newMemRepo(), hasher).WithClock(fixedClock(now))

		_, err := svc.Login(context.Background(), "nobody", "whatever")

		var creds *auth.InvalidCredentialsError
		require.ErrorAs(t, err, &creds)
		assert.Equal(t, "invalid username or password", err.Error())
	})

	t.Run("reports attempts remaining on a wrong password", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse"))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		_, err := svc.Login(context.Background(), "amelie", "wrong")

		var creds *auth.InvalidCredentialsError
		require.ErrorAs(t, err, &creds)
		assert.Equal(t, 2, creds.AttemptsLeft)
		assert.Equal(t, "invalid username or password, 2 attempts remaining", err.Error())
		assert.Equal(t, 1, repo.users.byUsername("amelie").LoginAttempts)
	})

	t.Run("locks the account on the third failure", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse"))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		for i := 0; i < 2; i++ {
			_, err := svc.Login(context.Background(), "amelie", "wrong")
			var creds *auth.InvalidCredentialsError
			require.ErrorAs(t, err, &creds)
		}

		_, err := svc.Login(context.Background(), "amelie", "wrong")

		var locked *auth.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Triggered)
		assert.Equal(t, 15, locked.RemainingMinutes())
		assert.Equal(t,
			"account locked due to multiple failed login attempts, try again in 15 minutes",
			err.Error())

		stored := repo.users.byUsername("amelie")
		require.NotNil(t, stored.LockoutUntil)
		assert.Equal(t, now.Add(15*time.Minute), *stored.LockoutUntil)
	})

	t.Run("rejects even the correct password while locked", func(t *testing.T) {
		until := now.Add(10*time.Minute + time.Second)
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse")
		user.LoginAttempts = 3
		user.LockoutUntil = &until

		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		_, err := svc.Login(context.Background(), "amelie", "correct-horse")

		var locked *auth.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.False(t, locked.Triggered)
		// partial minutes round up
		assert.Equal(t, 11, locked.RemainingMinutes())
	})

	t.Run("admits the correct password once the lockout expires", func(t *testing.T) {
		until := now.Add(-time.Minute)
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse")
		user.LoginAttempts = 3
		user.LockoutUntil = &until

		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		profile, err := svc.Login(context.Background(), "amelie", "correct-horse")

		require.NoError(t, err)
		assert.Equal(t, "amelie", profile.Username)

		stored := repo.users.byUsername("amelie")
		assert.Equal(t, 0, stored.LoginAttempts)
		assert.Nil(t, stored.LockoutUntil)
	})

	t.Run("relocks immediately on a wrong password after expiry", func(t *testing.T) {
		until := now.Add(-time.Minute)
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse")
		user.LoginAttempts = 3
		user.LockoutUntil = &until

		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		_, err := svc.Login(context.Background(), "amelie", "wrong")

		var locked *auth.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.True(t, locked.Triggered)
	})
}

func TestForgotPassword(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("stores a token hash and notifies the account holder", func(t *testing.T) {
		repo := newMemRepo(seedUser(t, hasher, "amelie", "amelie@example.com", "correct-horse"))
		notifier := &stubNotifier{}
		svc := auth.NewService(repo, hasher).
			WithClock(fixedClock(now)).
			WithTokenGenerator(stubTokens{token: "tok-123"}).
			WithNotifier(notifier)

		err := svc.ForgotPassword(context.Background(), "amelie@example.com")

		require.NoError(t, err)
		assert.Equal(t, 1, notifier.calls)
		assert.Equal(t, "amelie@example.com", notifier.email)
		assert.Equal(t, "tok-123", notifier.token)

		stored := repo.users.byEmail("amelie@example.com")
		require.NotNil(t, stored.ResetTokenHash)
		// the plaintext token never lands in the store
		assert.NotEqual(t, "tok-123", *stored.ResetTokenHash)
		assert.Equal(t, auth.HashToken("tok-123"), *stored.ResetTokenHash)
		require.NotNil(t, stored.ResetTokenExpiresAt)
		assert.Equal(t, now.Add(time.Hour), *stored.ResetTokenExpiresAt)
	})

	t.Run("reports the same outcome for an unknown email", func(t *testing.T) {
		notifier := &stubNotifier{}
		svc := auth.NewService(newMemRepo(), hasher).WithNotifier(notifier)

		err := svc.ForgotPassword(context.Background(), "nobody@example.com")

		require.NoError(t, err)
		assert.Equal(t, 0, notifier.calls)
	})
}

func TestResetPassword(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	seedWithToken := func(t *testing.T, token string, expires time.Time) (*memRepo, *auth.User) {
		t.Helper()
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "old-password")
		hash := auth.HashToken(token)
		user.ResetTokenHash = &hash
		user.ResetTokenExpiresAt = &expires
		return newMemRepo(user), user
	}

	t.Run("replaces the password and clears the token", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		err := svc.ResetPassword(context.Background(), "tok-123", "brand-new-password")

		require.NoError(t, err)

		stored := repo.users.byUsername("amelie")
		assert.Nil(t, stored.ResetTokenHash)
		assert.Nil(t, stored.ResetTokenExpiresAt)

		ok, err := hasher.Verify("brand-new-password", stored.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lifts an active lockout", func(t *testing.T) {
		repo, user := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		until := now.Add(10 * time.Minute)
		user.LoginAttempts = 3
		user.LockoutUntil = &until

		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		require.NoError(t, svc.ResetPassword(context.Background(), "tok-123", "brand-new-password"))

		stored := repo.users.byUsername("amelie")
		assert.Equal(t, 0, stored.LoginAttempts)
		assert.Nil(t, stored.LockoutUntil)

		_, err := svc.Login(context.Background(), "amelie", "brand-new-password")
		assert.NoError(t, err)
	})

	t.Run("rejects a token that was already used", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		require.NoError(t, svc.ResetPassword(context.Background(), "tok-123", "brand-new-password"))

		err := svc.ResetPassword(context.Background(), "tok-123", "sneaky-second-password")

		assert.ErrorIs(t, err, auth.ErrInvalidResetToken)

		ok, err := hasher.Verify("brand-new-password", repo.users.byUsername("amelie").PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(-time.Second))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		err := svc.ResetPassword(context.Background(), "tok-123", "brand-new-password")

		assert.ErrorIs(t, err, auth.ErrInvalidResetToken)
	})

	t.Run("rejects an unknown token", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		err := svc.ResetPassword(context.Background(), "tok-456", "brand-new-password")

		assert.ErrorIs(t, err, auth.ErrInvalidResetToken)
	})

	t.Run("rejects a mismatched row even when the store skips the hash check", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		svc := auth.NewService(&looseTokenRepo{repo}, hasher).WithClock(fixedClock(now))

		err := svc.ResetPassword(context.Background(), "tok-456", "brand-new-password")

		assert.ErrorIs(t, err, auth.ErrInvalidResetToken)
	})

	t.Run("rejects an empty password", func(t *testing.T) {
		repo, _ := seedWithToken(t, "tok-123", now.Add(30*time.Minute))
		svc := auth.NewService(repo, hasher).WithClock(fixedClock(now))

		err := svc.ResetPassword(context.Background(), "tok-123", "")

		var verr *auth.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestUpdateProfile(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")

	t.Run("mutates only supplied fields", func(t *testing.T) {
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "pw")
		user.FirstName = "Amelie"
		user.LastName = "Poulain"

		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher)

		profile, err := svc.UpdateProfile(context.Background(), user.ID, auth.UpdateProfileInput{
			FirstName: "Amélie",
		})

		require.NoError(t, err)
		assert.Equal(t, "Amélie", profile.FirstName)
		assert.Equal(t, "Poulain", profile.LastName)
		assert.Equal(t, "amelie@example.com", profile.Email)
	})

	t.Run("rejects an email held by another account", func(t *testing.T) {
		a := seedUser(t, hasher, "amelie", "amelie@example.com", "pw")
		b := seedUser(t, hasher, "basil", "basil@example.com", "pw")

		repo := newMemRepo(a, b)
		svc := auth.NewService(repo, hasher)

		_, err := svc.UpdateProfile(context.Background(), a.ID, auth.UpdateProfileInput{
			Email: "basil@example.com",
		})

		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("allows keeping the current email", func(t *testing.T) {
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "pw")
		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher)

		_, err := svc.UpdateProfile(context.Background(), user.ID, auth.UpdateProfileInput{
			Email: "amelie@example.com",
		})

		assert.NoError(t, err)
	})

	t.Run("reports a missing account", func(t *testing.T) {
		svc := auth.NewService(newMemRepo(), hasher)

		_, err := svc.UpdateProfile(context.Background(), seedUser(t, hasher, "x", "x@example.com", "pw").ID, auth.UpdateProfileInput{})

		assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	})
}

func TestUpdateProfilePicture(t *testing.T) {
	hasher := auth.NewSHA256Hasher("pepper")

	t.Run("sets and clears the stored path", func(t *testing.T) {
		user := seedUser(t, hasher, "amelie", "amelie@example.com", "pw")
		repo := newMemRepo(user)
		svc := auth.NewService(repo, hasher)

		path := "/uploads/abc.png"
		profile, err := svc.UpdateProfilePicture(context.Background(), user.ID, &path)
		require.NoError(t, err)
		require.NotNil(t, profile.ProfilePicture)
		assert.Equal(t, path, *profile.ProfilePicture)

		profile, err = svc.UpdateProfilePicture(context.Background(), user.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, profile.ProfilePicture)
	})
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, auth.IsBusinessError(auth.ErrDuplicateEmail))
	assert.True(t, auth.IsBusinessError(&auth.InvalidCredentialsError{AttemptsLeft: 1}))
	assert.True(t, auth.IsBusinessError(&auth.AccountLockedError{}))
	assert.False(t, auth.IsBusinessError(errors.New("boom")))
	assert.False(t, auth.IsBusinessError(&auth.PersistenceError{Op: "login"}))
}
