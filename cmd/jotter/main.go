package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/jotterapp/jotter/auth"
	"github.com/jotterapp/jotter/config"
	"github.com/jotterapp/jotter/diary"
	"github.com/jotterapp/jotter/uploads"
)

//go:embed views
var embeddedFS embed.FS

type App struct {
	config    *gconfig.Container[*config.BaseConfig]
	bunDB     *bun.DB
	authSvc   *auth.Service
	diarySvc  *diary.Service
	sessions  *auth.SessionManager
	guards    *auth.Guards
	avatars   *uploads.Storage
	authRepo  auth.RepositoryManager
	diaryRepo diary.RepositoryManager
	srv       router.Server[*fiber.App]
	logger    *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("jotter"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if app.Config().GetApp().GetEnv() == "development" {
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithServices(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	RegisterRoutes(app)

	app.srv.Serve(app.Config().GetServer().GetAddr())

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.Config().GetPersistence().GetDSN())
	if err != nil {
		return err
	}

	persistence.RegisterModel((*auth.User)(nil))
	persistence.RegisterModel((*diary.Entry)(nil))

	pcfg := app.Config().GetPersistence()
	dialect := sqlitedialect.New()
	client, err := persistence.New(pcfg, db, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	authMigrations, err := fs.Sub(auth.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		authMigrations,
		persistence.WithDialectSourceLabel("auth/data/sql/migrations"),
		persistence.WithValidationTargets("sqlite"),
	)

	diaryMigrations, err := fs.Sub(diary.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		diaryMigrations,
		persistence.WithDialectSourceLabel("diary/data/sql/migrations"),
		persistence.WithValidationTargets("sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.authRepo = auth.NewRepositoryManager(client.DB())
	app.diaryRepo = diary.NewRepositoryManager(client.DB())

	return nil
}

func WithServices(ctx context.Context, app *App) error {
	acfg := app.Config().GetAuth()
	scfg := app.Config().GetSession()
	ucfg := app.Config().GetUploads()

	app.sessions = auth.NewSessionManager([]byte(scfg.GetSigningKey())).
		WithCookieName(scfg.GetCookieName()).
		WithDuration(scfg.GetDuration()).
		WithIssuer(app.Config().GetApp().GetName()).
		WithLogger(app.GetLogger("session"))

	app.guards = auth.NewGuards(app.sessions).
		WithLogger(app.GetLogger("guard"))

	app.authSvc = auth.NewService(app.authRepo, auth.NewBcryptHasher()).
		WithLogger(app.GetLogger("auth")).
		WithLockoutPolicy(acfg.GetMaxLoginAttempts(), acfg.GetLockoutDuration()).
		WithResetTokenTTL(acfg.GetResetTokenTTL())

	app.diarySvc = diary.NewService(app.diaryRepo).
		WithLogger(app.GetLogger("diary"))

	app.avatars = uploads.NewStorage(ucfg.GetDir()).
		WithBaseURL(ucfg.GetBaseURL())

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	views, err := fs.Sub(embeddedFS, app.Config().GetViews().GetDir())
	if err != nil {
		return err
	}

	engine := django.NewPathForwardingFileSystem(http.FS(views), "/", ".html")
	engine.Reload(app.Config().GetViews().GetReload())

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))
	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	srv.Router().Static("/uploads", app.Config().GetUploads().GetDir())

	app.srv = srv
	return nil
}

func RegisterRoutes(app *App) {
	r := app.srv.Router()

	controller := auth.NewController(app.authSvc, app.sessions, app.guards,
		auth.WithControllerLogger(app.GetLogger("auth-http")),
	)
	auth.RegisterAuthRoutes(r, controller)

	profile := auth.NewProfileController(app.authSvc, app.sessions, app.guards, app.avatars).
		WithLogger(app.GetLogger("profile-http"))
	auth.RegisterProfileRoutes(r, profile)

	journal := diary.NewHTTPController(app.diarySvc, app.sessions, app.guards).
		WithLogger(app.GetLogger("diary-http"))
	diary.RegisterDiaryRoutes(r, journal)

	r.Get("/", func(ctx router.Context) error {
		if app.sessions.IsAuthenticated(ctx) {
			return ctx.Redirect("/diary", http.StatusFound)
		}
		return ctx.Redirect("/login", http.StatusFound)
	}).SetName("home.get")
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
