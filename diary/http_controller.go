package diary

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"

	"github.com/jotterapp/jotter/auth"
)

const entryDateLayout = "2006-01-02"

// User facing outcome messages for the journal flows.
const (
	MsgEntrySaved   = "Diary entry saved."
	MsgEntryDeleted = "Diary entry deleted."
)

// RegisterDiaryRoutes mounts the journal pages behind the session guard.
func RegisterDiaryRoutes[T any](app router.Router[T], controller *HTTPController) {
	authed := controller.Guards.RequireAuthenticated()

	base := controller.Routes.Base

	app.Get(base, controller.Index, authed).SetName("diary.index")
	app.Get(base+"/new", controller.New, authed).SetName("diary.new")
	app.Post(base, controller.Create, authed).SetName("diary.create")
	app.Get(fmt.Sprintf("%s/:id", base), controller.Show, authed).SetName("diary.show")
	app.Get(fmt.Sprintf("%s/:id/edit", base), controller.Edit, authed).SetName("diary.edit")
	app.Post(fmt.Sprintf("%s/:id", base), controller.Update, authed).SetName("diary.update")
	app.Post(fmt.Sprintf("%s/:id/delete", base), controller.Delete, authed).SetName("diary.delete")
}

type HTTPControllerRoutes struct {
	Base string
}

type HTTPControllerViews struct {
	Index string
	Form  string
	Show  string
}

// HTTPController serves the journal pages.
type HTTPController struct {
	Logger   Logger
	Diary    *Service
	Sessions *auth.SessionManager
	Guards   *auth.Guards
	Routes   *HTTPControllerRoutes
	Views    *HTTPControllerViews
}

func NewHTTPController(diary *Service, sessions *auth.SessionManager, guards *auth.Guards) *HTTPController {
	return &HTTPController{
		Logger:   noopLogger{},
		Diary:    diary,
		Sessions: sessions,
		Guards:   guards,
		Routes:   &HTTPControllerRoutes{Base: "/diary"},
		Views: &HTTPControllerViews{
			Index: "diary/index",
			Form:  "diary/form",
			Show:  "diary/show",
		},
	}
}

func (a *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *HTTPController) Index(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	records, err := a.Diary.List(ctx.Context(), uid)
	if err != nil {
		a.Logger.Error("diary list error: ", "error", err)
		return ctx.Render("errors/500", router.ViewContext{
			"message": err.Error(),
		})
	}

	return ctx.Render(a.Views.Index, router.ViewContext{
		"records": records,
	})
}

func (a *HTTPController) New(ctx router.Context) error {
	return ctx.Render(a.Views.Form, router.ViewContext{
		"record": EntryPayload{EntryDate: time.Now().Format(entryDateLayout)},
		"action": a.Routes.Base,
	})
}

// EntryPayload is the entry form payload.
type EntryPayload struct {
	Title     string `form:"title" json:"title"`
	Content   string `form:"content" json:"content"`
	EntryDate string `form:"entry_date" json:"entry_date"`
}

// Validate will validate the payload
func (r EntryPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.EntryDate, validation.Date(entryDateLayout)),
	)
}

func (r EntryPayload) input() EntryInput {
	in := EntryInput{
		Title:   r.Title,
		Content: r.Content,
	}
	if d, err := time.Parse(entryDateLayout, r.EntryDate); err == nil {
		in.EntryDate = d
	}
	return in
}

func (a *HTTPController) Create(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	payload := new(EntryPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("entry parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Form, router.ViewContext{
			"record": payload,
			"action": a.Routes.Base,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Form, router.ViewContext{
			"record":     payload,
			"action":     a.Routes.Base,
			"validation": auth.FormatValidationErrorToMap(err),
		})
	}

	entry, err := a.Diary.Create(ctx.Context(), uid, payload.input())
	if err != nil {
		a.Logger.Error("entry create error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not save the entry",
		}).Render(a.Views.Form, router.ViewContext{
			"record": payload,
			"action": a.Routes.Base,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgEntrySaved,
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Base, entry.ID), fiber.StatusSeeOther)
}

func (a *HTTPController) Show(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	entry, err := a.entryParam(ctx, uid)
	if err != nil {
		return a.notFound(ctx, err)
	}

	return ctx.Render(a.Views.Show, router.ViewContext{
		"record": entry,
	})
}

func (a *HTTPController) Edit(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	entry, err := a.entryParam(ctx, uid)
	if err != nil {
		return a.notFound(ctx, err)
	}

	return ctx.Render(a.Views.Form, router.ViewContext{
		"record": EntryPayload{
			Title:     entry.Title,
			Content:   entry.Content,
			EntryDate: entry.EntryDate.Format(entryDateLayout),
		},
		"action": fmt.Sprintf("%s/%s", a.Routes.Base, entry.ID),
	})
}

func (a *HTTPController) Update(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.notFound(ctx, ErrEntryNotFound)
	}

	payload := new(EntryPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("entry parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Form, router.ViewContext{
			"record": payload,
			"action": fmt.Sprintf("%s/%s", a.Routes.Base, id),
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Form, router.ViewContext{
			"record":     payload,
			"action":     fmt.Sprintf("%s/%s", a.Routes.Base, id),
			"validation": auth.FormatValidationErrorToMap(err),
		})
	}

	entry, err := a.Diary.Update(ctx.Context(), uid, id, payload.input())
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return a.notFound(ctx, err)
		}
		a.Logger.Error("entry update error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not save the entry",
		}).Render(a.Views.Form, router.ViewContext{
			"record": payload,
			"action": fmt.Sprintf("%s/%s", a.Routes.Base, id),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgEntrySaved,
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Base, entry.ID), fiber.StatusSeeOther)
}

func (a *HTTPController) Delete(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.notFound(ctx, ErrEntryNotFound)
	}

	if err := a.Diary.Delete(ctx.Context(), uid, id); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return a.notFound(ctx, err)
		}
		a.Logger.Error("entry delete error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not delete the entry",
		}).Redirect(a.Routes.Base, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgEntryDeleted,
	}).Redirect(a.Routes.Base, fiber.StatusSeeOther)
}

func (a *HTTPController) entryParam(ctx router.Context, uid uuid.UUID) (*Entry, error) {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return nil, ErrEntryNotFound
	}

	return a.Diary.Get(ctx.Context(), uid, id)
}

func (a *HTTPController) notFound(ctx router.Context, err error) error {
	return ctx.Status(fiber.StatusNotFound).Render("errors/404", router.ViewContext{
		"message": err.Error(),
	})
}
