// Package config carries the application settings. Values load through
// go-config with environment overrides; every nested block exposes getters
// so consumers depend on accessors instead of struct layout.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

type BaseConfig struct {
	App         App         `json:"app" koanf:"app"`
	Server      Server      `json:"server" koanf:"server"`
	Persistence Persistence `json:"persistence" koanf:"persistence"`
	Session     Session     `json:"session" koanf:"session"`
	Auth        Auth        `json:"auth" koanf:"auth"`
	Uploads     Uploads     `json:"uploads" koanf:"uploads"`
	Views       Views       `json:"views" koanf:"views"`
}

func (c *BaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Session),
		validation.Field(&c.Persistence),
	)
}

func (c *BaseConfig) GetApp() App                 { return c.App }
func (c *BaseConfig) GetServer() Server           { return c.Server }
func (c *BaseConfig) GetPersistence() Persistence { return c.Persistence }
func (c *BaseConfig) GetSession() Session         { return c.Session }
func (c *BaseConfig) GetAuth() Auth               { return c.Auth }
func (c *BaseConfig) GetUploads() Uploads         { return c.Uploads }
func (c *BaseConfig) GetViews() Views             { return c.Views }

type App struct {
	Name string `json:"name" koanf:"name"`
	Env  string `json:"env" koanf:"env"`
}

func (a App) GetName() string {
	if a.Name == "" {
		return "jotter"
	}
	return a.Name
}

func (a App) GetEnv() string {
	if a.Env == "" {
		return "development"
	}
	return a.Env
}

type Server struct {
	Addr string `json:"addr" koanf:"addr"`
}

func (s Server) GetAddr() string {
	if s.Addr == "" {
		return ":8580"
	}
	return s.Addr
}

type Persistence struct {
	Debug                 bool   `json:"debug" koanf:"debug"`
	Driver                string `json:"driver" koanf:"driver"`
	DSN                   string `json:"dsn" koanf:"dsn"`
	PingTimeoutExpression string `json:"ping_timeout" koanf:"ping_timeout"`
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DSN, validation.Required),
	)
}

func (p Persistence) GetDebug() bool { return p.Debug }

func (p Persistence) GetDriver() string {
	if p.Driver == "" {
		return "sqlite"
	}
	return p.Driver
}

func (p Persistence) GetDSN() string {
	if p.DSN == "" {
		return "file:jotter.db?cache=shared&_pragma=foreign_keys(1)"
	}
	return p.DSN
}

func (p Persistence) GetServer() string { return p.GetDSN() }

func (p Persistence) GetOtelIdentifier() string { return "" }

func (p Persistence) GetPingTimeout() time.Duration {
	expr := p.PingTimeoutExpression
	if expr == "" {
		expr = "5s"
	}

	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}

type Session struct {
	SigningKey string `json:"signing_key" koanf:"signing_key"`
	CookieName string `json:"cookie_name" koanf:"cookie_name"`
	Duration   string `json:"duration" koanf:"duration"`
}

func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.SigningKey, validation.Required, validation.Length(32, 0)),
	)
}

func (s Session) GetSigningKey() string { return s.SigningKey }

func (s Session) GetCookieName() string {
	if s.CookieName == "" {
		return "jotter_session"
	}
	return s.CookieName
}

func (s Session) GetDuration() time.Duration {
	if s.Duration == "" {
		return 24 * time.Hour
	}

	dur, err := time.ParseDuration(s.Duration)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", s.Duration),
		)
	}
	return dur
}

type Auth struct {
	MaxLoginAttempts int    `json:"max_login_attempts" koanf:"max_login_attempts"`
	LockoutDuration  string `json:"lockout_duration" koanf:"lockout_duration"`
	ResetTokenTTL    string `json:"reset_token_ttl" koanf:"reset_token_ttl"`
	PasswordPepper   string `json:"password_pepper" koanf:"password_pepper"`
}

func (a Auth) GetMaxLoginAttempts() int {
	if a.MaxLoginAttempts <= 0 {
		return 3
	}
	return a.MaxLoginAttempts
}

func (a Auth) GetLockoutDuration() time.Duration {
	return a.duration(a.LockoutDuration, 15*time.Minute)
}

func (a Auth) GetResetTokenTTL() time.Duration {
	return a.duration(a.ResetTokenTTL, time.Hour)
}

func (a Auth) GetPasswordPepper() string { return a.PasswordPepper }

func (a Auth) duration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}

	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}

type Uploads struct {
	Dir     string `json:"dir" koanf:"dir"`
	BaseURL string `json:"base_url" koanf:"base_url"`
}

func (u Uploads) GetDir() string {
	if u.Dir == "" {
		return "uploads"
	}
	return u.Dir
}

func (u Uploads) GetBaseURL() string {
	if u.BaseURL == "" {
		return "/uploads"
	}
	return u.BaseURL
}

type Views struct {
	Dir    string `json:"dir" koanf:"dir"`
	Reload bool   `json:"reload" koanf:"reload"`
}

func (v Views) GetDir() string {
	if v.Dir == "" {
		return "views"
	}
	return v.Dir
}

func (v Views) GetReload() bool { return v.Reload }
