package auth_test

import (
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jotterapp/jotter/auth"
)

// memUsers keeps accounts in a map and mirrors the SQL semantics of the real
// repository: the success and reset updates clear the nullable columns.
type memUsers struct {
	auth.Users
	records map[uuid.UUID]*auth.User
}

func newMemUsers(seed ...*auth.User) *memUsers {
	m := &memUsers{records: map[uuid.UUID]*auth.User{}}
	for _, u := range seed {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		m.records[u.ID] = u
	}
	return m
}

func (m *memUsers) byUsername(username string) *auth.User {
	for _, u := range m.records {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (m *memUsers) byEmail(email string) *auth.User {
	for _, u := range m.records {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (m *memUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*auth.User, error) {
	if u := m.byUsername(username); u != nil {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	if u := m.byEmail(email); u != nil {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByUserID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return m.GetByUserIDTx(ctx, nil, id)
}

func (m *memUsers) GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.User, error) {
	if u, ok := m.records[id]; ok {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByActiveResetTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*auth.User, error) {
	hash := auth.HashToken(token)
	for _, u := range m.records {
		if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
			continue
		}
		if *u.ResetTokenHash == hash && u.ResetTokenExpiresAt.After(now) {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) UsernameTakenTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return m.byUsername(username) != nil, nil
}

func (m *memUsers) EmailTakenTx(ctx context.Context, tx bun.IDB, email string, excluding uuid.UUID) (bool, error) {
	u := m.byEmail(email)
	return u != nil && u.ID != excluding, nil
}

func (m *memUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.records[user.ID] = user
	return user, nil
}

func (m *memUsers) SaveLoginFailureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, attempts int, lockoutUntil *time.Time) error {
	u := m.records[id]
	u.LoginAttempts = attempts
	u.LockoutUntil = lockoutUntil
	return nil
}

func (m *memUsers) SaveLoginSuccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	u := m.records[id]
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	u.LastLoginAt = &at
	return nil
}

func (m *memUsers) StoreResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	u := m.records[id]
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (m *memUsers) CompletePasswordResetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	u := m.records[id]
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	u.LoginAttempts = 0
	u.LockoutUntil = nil
	return nil
}

func (m *memUsers) SaveProfileTx(ctx context.Context, tx bun.IDB, user *auth.User) error {
	m.records[user.ID] = user
	return nil
}

func (m *memUsers) SetProfilePictureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path *string) error {
	m.records[id].ProfilePicture = path
	return nil
}

// memRepo satisfies auth.RepositoryManager without a database; RunInTx just
// invokes the callback.
type memRepo struct {
	users *memUsers
}

func newMemRepo(seed ...*auth.User) *memRepo {
	return &memRepo{users: newMemUsers(seed...)}
}

func (m *memRepo) Validate() error { return nil }
func (m *memRepo) MustValidate()   {}

func (m *memRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepo) Users() auth.Users { return m.users }

// looseTokenUsers hands back the first row holding any reset token without
// comparing hashes, standing in for a store that skips the match.
type looseTokenUsers struct {
	*memUsers
}

func (u looseTokenUsers) GetByActiveResetTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*auth.User, error) {
	for _, rec := range u.records {
		if rec.ResetTokenHash != nil {
			return rec, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

type looseTokenRepo struct {
	*memRepo
}

func (r *looseTokenRepo) Users() auth.Users { return looseTokenUsers{r.memRepo.users} }

// stubNotifier records the last delivered reset token.
type stubNotifier struct {
	email string
	token string
	calls int
}

func (s *stubNotifier) NotifyPasswordReset(email, token string) error {
	s.email = email
	s.token = token
	s.calls++
	return nil
}

// stubTokens hands out a fixed token.
type stubTokens struct {
	token string
}

func (s stubTokens) Generate() (string, error) { return s.token, nil }

// fakeContext is a stateful router.Context for handler and middleware tests.
type fakeContext struct {
	ctx         context.Context
	method      string
	path        string
	originalURL string
	body        []byte
	headers     map[string]string
	cookies     map[string]string
	setCookies  []*router.Cookie
	locals      map[any]any
	params      map[string]string
	queries     map[string]string
	bindTo      func(any) error

	statusCode     int
	renderedView   string
	renderedBind   any
	redirectedTo   string
	redirectStatus int
	sentString     string
	nextCalled     bool
	referer        string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		ctx:     context.Background(),
		method:  "GET",
		path:    "/",
		headers: map[string]string{},
		cookies: map[string]string{},
		locals:  map[any]any{},
		params:  map[string]string{},
		queries: map[string]string{},
	}
}

func (f *fakeContext) Next() error {
	f.nextCalled = true
	return nil
}

func (f *fakeContext) Context() context.Context        { return f.ctx }
func (f *fakeContext) SetContext(ctx context.Context)  { f.ctx = ctx }
func (f *fakeContext) Path() string                    { return f.path }
func (f *fakeContext) Method() string                  { return f.method }
func (f *fakeContext) Body() []byte                    { return f.body }
func (f *fakeContext) Status(code int) router.Context  { f.statusCode = code; return f }
func (f *fakeContext) SendString(s string) error       { f.sentString = s; return nil }
func (f *fakeContext) Send(b []byte) error             { return nil }
func (f *fakeContext) JSON(code int, val any) error    { f.statusCode = code; return nil }
func (f *fakeContext) NoContent(code int) error        { f.statusCode = code; return nil }
func (f *fakeContext) SetHeader(k, v string) router.Context {
	f.headers[k] = v
	return f
}

func (f *fakeContext) Render(name string, bind any, layout ...string) error {
	f.renderedView = name
	f.renderedBind = bind
	return nil
}

func (f *fakeContext) Redirect(path string, status ...int) error {
	f.redirectedTo = path
	if len(status) > 0 {
		f.redirectStatus = status[0]
	}
	return nil
}

func (f *fakeContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	f.redirectedTo = name
	return nil
}

func (f *fakeContext) RedirectBack(fallback string, status ...int) error {
	f.redirectedTo = fallback
	return nil
}

func (f *fakeContext) Header(key string) string { return f.headers[key] }

func (f *fakeContext) Get(key string, def any) any {
	if v, ok := f.locals[key]; ok {
		return v
	}
	return def
}

func (f *fakeContext) GetBool(key string, def bool) bool { return def }
func (f *fakeContext) GetInt(key string, def int) int    { return def }
func (f *fakeContext) Set(key string, val any)           { f.locals[key] = val }

func (f *fakeContext) Bind(i any) error {
	if f.bindTo != nil {
		return f.bindTo(i)
	}
	return nil
}

func (f *fakeContext) BindJSON(i any) error  { return f.Bind(i) }
func (f *fakeContext) BindXML(i any) error   { return f.Bind(i) }
func (f *fakeContext) BindQuery(i any) error { return f.Bind(i) }

func (f *fakeContext) CookieParser(i any) error { return nil }

func (f *fakeContext) Cookie(cookie *router.Cookie) {
	f.setCookies = append(f.setCookies, cookie)
	if cookie.Expires.Before(time.Now()) {
		delete(f.cookies, cookie.Name)
		return
	}
	f.cookies[cookie.Name] = cookie.Value
}

func (f *fakeContext) Cookies(key string, def ...string) string {
	if v, ok := f.cookies[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (f *fakeContext) Param(key string, def ...string) string {
	if v, ok := f.params[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (f *fakeContext) ParamsInt(key string, def int) int { return def }

func (f *fakeContext) Query(key string, def ...string) string {
	if v, ok := f.queries[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (f *fakeContext) QueryInt(key string, def int) int  { return def }
func (f *fakeContext) Queries() map[string]string        { return f.queries }
func (f *fakeContext) QueryValues(key string) []string   { return nil }
func (f *fakeContext) FormValue(key string, def ...string) string {
	if len(def) > 0 {
		return def[0]
	}
	return ""
}
func (f *fakeContext) FormFile(key string) (*multipart.FileHeader, error) { return nil, nil }
func (f *fakeContext) IP() string                                         { return "" }
func (f *fakeContext) SendStatus(code int) error                          { f.statusCode = code; return nil }
func (f *fakeContext) SendStream(r io.Reader) error                       { return nil }
func (f *fakeContext) RouteName() string                                  { return "" }
func (f *fakeContext) RouteParams() map[string]string                     { return f.params }

func (f *fakeContext) LocalsMerge(key any, value map[string]any) map[string]any {
	existing, _ := f.locals[key].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range value {
		existing[k] = v
	}
	f.locals[key] = existing
	return existing
}

func (f *fakeContext) GetString(key string, def string) string {
	if v, ok := f.headers[key]; ok {
		return v
	}
	return def
}

func (f *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return nil
	}
	return f.locals[key]
}

func (f *fakeContext) OriginalURL() string {
	if f.originalURL != "" {
		return f.originalURL
	}
	return f.path
}

func (f *fakeContext) OnNext(callback func() error) {}
func (f *fakeContext) Referer() string              { return f.referer }
