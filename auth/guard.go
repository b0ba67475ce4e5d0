package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// rejectedRouteCookie remembers where an unauthenticated visitor was headed
// so login can send them back.
const rejectedRouteCookie = "jotter_redirect"

// Guards wraps route handlers with session checks. Protected routes bounce
// anonymous visitors to the login page; guest-only routes bounce signed-in
// visitors to their landing page.
type Guards struct {
	sessions  *SessionManager
	loginPath string
	homePath  string
	logger    Logger
}

func NewGuards(sessions *SessionManager) *Guards {
	return &Guards{
		sessions:  sessions,
		loginPath: "/login",
		homePath:  "/diary",
		logger:    defLogger{},
	}
}

func (g *Guards) WithLoginPath(path string) *Guards {
	if path != "" {
		g.loginPath = path
	}
	return g
}

func (g *Guards) WithHomePath(path string) *Guards {
	if path != "" {
		g.homePath = path
	}
	return g
}

func (g *Guards) WithLogger(logger Logger) *Guards {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// RequireAuthenticated admits only requests with a valid session. Rejected
// requests record their target route before redirecting to login.
func (g *Guards) RequireAuthenticated() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if g.sessions.IsAuthenticated(c) {
				return next(c)
			}

			g.logger.Info("unauthenticated request rejected", "path", c.OriginalURL())
			g.SetRedirect(c)

			return c.Redirect(g.loginPath, redirectStatus(c))
		}
	}
}

// RequireGuest admits only requests without a session, keeping signed-in
// visitors out of the login and registration flows.
func (g *Guards) RequireGuest() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !g.sessions.IsAuthenticated(c) {
				return next(c)
			}

			return c.Redirect(g.homePath, redirectStatus(c))
		}
	}
}

// SetRedirect stores the current URL so the login flow can resume it.
func (g *Guards) SetRedirect(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     rejectedRouteCookie,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect pops the stored target route, falling back to def.
func (g *Guards) GetRedirect(c router.Context, def string) string {
	r := c.Cookies(rejectedRouteCookie)
	if r == "" {
		return def
	}

	c.Cookie(&router.Cookie{
		Name:     rejectedRouteCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
	return r
}

// redirectStatus keeps browsers from replaying form bodies across the
// redirect: GET gets 302, everything else 303.
func redirectStatus(c router.Context) int {
	if c.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
