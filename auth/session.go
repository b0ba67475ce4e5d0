package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// DefaultSessionCookie names the cookie carrying the signed session.
const DefaultSessionCookie = "jotter_session"

// DefaultSessionDuration bounds how long a signed-in session stays valid.
const DefaultSessionDuration = 24 * time.Hour

const sessionLocalsKey = "jotter:session"

// SessionClaims is the JWT payload backing a browser session. UID carries
// the account id; Dat carries the profile snapshot used to render pages
// without a store round trip.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID string         `json:"uid,omitempty"`
	Dat map[string]any `json:"dat,omitempty"`
}

// Session is the decoded, validated state of a signed-in visitor.
type Session struct {
	UserID uuid.UUID
	Data   map[string]any
}

// SnapshotProfile rebuilds a Profile from the session snapshot. Missing or
// corrupt entries degrade to zero values rather than failing the session.
func (s *Session) SnapshotProfile() *Profile {
	p := &Profile{ID: s.UserID}
	if s.Data == nil {
		return p
	}

	str := func(key string) string {
		v, _ := s.Data[key].(string)
		return v
	}

	p.Username = str("username")
	p.Email = str("email")
	p.FirstName = str("first_name")
	p.LastName = str("last_name")

	if pic := str("profile_picture"); pic != "" {
		p.ProfilePicture = &pic
	}

	if raw := str("created_at"); raw != "" {
		if created, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.CreatedAt = &created
		}
	}

	return p
}

// SessionManager signs profiles into an HTTP-only cookie and reads them back
// on later requests. A cookie that fails signature, expiry, or id validation
// reads as no session at all.
type SessionManager struct {
	signingKey []byte
	cookieName string
	issuer     string
	duration   time.Duration
	logger     Logger
	now        nowFunc
}

func NewSessionManager(signingKey []byte) *SessionManager {
	return &SessionManager{
		signingKey: signingKey,
		cookieName: DefaultSessionCookie,
		duration:   DefaultSessionDuration,
		logger:     defLogger{},
		now:        time.Now,
	}
}

func (m *SessionManager) WithCookieName(name string) *SessionManager {
	if name != "" {
		m.cookieName = name
	}
	return m
}

func (m *SessionManager) WithIssuer(issuer string) *SessionManager {
	m.issuer = issuer
	return m
}

func (m *SessionManager) WithDuration(d time.Duration) *SessionManager {
	if d > 0 {
		m.duration = d
	}
	return m
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock pins the time source, mostly for tests.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// SignIn replaces any existing session with one for the given profile.
func (m *SessionManager) SignIn(c router.Context, profile *Profile) error {
	now := m.now()

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   profile.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
		UID: profile.ID.String(),
		Dat: profileSnapshot(profile),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	c.Cookie(&router.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Expires:  now.Add(m.duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})

	c.Locals(sessionLocalsKey, &Session{UserID: profile.ID, Data: claims.Dat})
	return nil
}

// SignOut drops the session cookie. Safe to call without a session.
func (m *SessionManager) SignOut(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
	c.Locals(sessionLocalsKey, signedOut{})
}

// signedOut marks a request whose session was dropped mid-flight, so a
// still-present request cookie does not resurrect it.
type signedOut struct{}

// Current returns the validated session for this request, if any.
func (m *SessionManager) Current(c router.Context) (*Session, bool) {
	if v := c.Locals(sessionLocalsKey); v != nil {
		if cached, ok := v.(*Session); ok {
			return cached, true
		}
		return nil, false
	}

	raw := c.Cookies(m.cookieName)
	if raw == "" {
		return nil, false
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		m.logger.Debug("session cookie rejected", "error", err)
		return nil, false
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, false
	}

	id, err := uuid.Parse(claims.UID)
	if err != nil || id == uuid.Nil {
		m.logger.Debug("session cookie carries invalid uid", "uid", claims.UID)
		return nil, false
	}

	sess := &Session{UserID: id, Data: claims.Dat}
	c.Locals(sessionLocalsKey, sess)
	return sess, true
}

// IsAuthenticated reports whether the request carries a valid session.
func (m *SessionManager) IsAuthenticated(c router.Context) bool {
	_, ok := m.Current(c)
	return ok
}

// CurrentUserID returns the signed-in account id, if any.
func (m *SessionManager) CurrentUserID(c router.Context) (uuid.UUID, bool) {
	sess, ok := m.Current(c)
	if !ok {
		return uuid.Nil, false
	}
	return sess.UserID, true
}

func profileSnapshot(p *Profile) map[string]any {
	dat := map[string]any{
		"username":   p.Username,
		"email":      p.Email,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	}
	if p.ProfilePicture != nil {
		dat["profile_picture"] = *p.ProfilePicture
	}
	if p.CreatedAt != nil {
		dat["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return dat
}
