package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// User facing outcome messages for the credential flows.
const (
	MsgRegistered    = "Registration successful, please login with your credentials."
	MsgPasswordReset = "Password reset successful, please login with your new password."
)

// RegisterAuthRoutes mounts the credential flows on the router. Guest-only
// pages get the guest guard so signed-in visitors skip straight to their
// diary.
func RegisterAuthRoutes[T any](app router.Router[T], controller *Controller) {
	guest := controller.Guards.RequireGuest()

	app.Get(controller.Routes.Login, controller.LoginShow, guest).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost, guest).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow, guest).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate, guest).
		SetName("register.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow, guest).
		SetName("pwd-forgot.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost, guest).
		SetName("pwd-forgot.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.ResetPassword), controller.ResetPasswordShow, guest).
		SetName("pwd-reset.get")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.ResetPassword), controller.ResetPasswordExecute, guest).
		SetName("pwd-reset.post")
}

type ControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	ForgotPassword string
	ResetPassword  string
	Home           string
}

type ControllerViews struct {
	Login          string
	Register       string
	ForgotPassword string
	ResetPassword  string
}

// Controller serves the HTML credential flows: login, logout, registration,
// and password reset.
type Controller struct {
	Logger       Logger
	Auth         *Service
	Sessions     *SessionManager
	Guards       *Guards
	Routes       *ControllerRoutes
	Views        *ControllerViews
	ErrorHandler router.ErrorHandler
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

func WithControllerRoutes(routes *ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		c.Routes = routes
		return c
	}
}

func NewController(auth *Service, sessions *SessionManager, guards *Guards, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:       defLogger{},
		Auth:         auth,
		Sessions:     sessions,
		Guards:       guards,
		ErrorHandler: defaultErrHandler,
		Routes: &ControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			Home:           "/diary",
		},
		Views: &ControllerViews{
			Login:          "login",
			Register:       "register",
			ForgotPassword: "forgot_password",
			ResetPassword:  "reset_password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auth == nil {
		panic("Missing auth service in controller...")
	}

	if c.Sessions == nil {
		panic("Missing session manager in controller...")
	}

	return c
}

func (a *Controller) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginPayload is the sign-in form payload.
type LoginPayload struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	profile, err := a.Auth.Login(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		if !IsBusinessError(err) {
			a.Logger.Error("login error: ", "error", err)
		}
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"authentication": err.Error()},
		})
	}

	if err := a.Sessions.SignIn(ctx, profile); err != nil {
		a.Logger.Error("login session error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	redirect := a.Guards.GetRedirect(ctx, a.Routes.Home)
	return ctx.Redirect(redirect, fiber.StatusSeeOther)
}

func (a *Controller) LogOut(ctx router.Context) error {
	a.Sessions.SignOut(ctx)
	return ctx.Redirect(a.Routes.Login, fiber.StatusFound)
}

func (a *Controller) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationPayload{},
	})
}

// RegistrationPayload is the new account form payload.
type RegistrationPayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *Controller) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	_, err := a.Auth.Register(ctx.Context(), RegisterInput{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		if !IsBusinessError(err) {
			a.Logger.Error("register error: ", "error", err)
		}
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Registration failed",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": registrationErrors(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgRegistered,
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *Controller) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// ForgotPasswordPayload holds the reset request form.
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *Controller) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.ForgotPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	// Outcome is identical whether or not the account exists.
	if err := a.Auth.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		a.Logger.Error("forgot password error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Something went wrong, please try again",
		}).Render(a.Views.ForgotPassword, router.ViewContext{
			"record": payload,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgResetRequested,
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *Controller) ResetPasswordShow(ctx router.Context) error {
	token := ctx.Param("token", "")

	return ctx.Render(a.Views.ResetPassword, router.ViewContext{
		"errors": nil,
		"token":  token,
	})
}

// ResetPasswordPayload holds the new password form.
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *Controller) ResetPasswordExecute(ctx router.Context) error {
	token := ctx.Param("token", "")
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.ResetPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"token":  token,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ResetPassword, router.ViewContext{
			"token":      token,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Auth.ResetPassword(ctx.Context(), token, payload.Password); err != nil {
		if !IsBusinessError(err) {
			a.Logger.Error("reset password error: ", "error", err)
		}
		return ctx.Render(a.Views.ResetPassword, router.ViewContext{
			"token":  token,
			"errors": map[string]string{"token": err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgPasswordReset,
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func registrationErrors(err error) map[string]string {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return map[string]string{"username": err.Error()}
	case errors.Is(err, ErrDuplicateEmail):
		return map[string]string{"email": err.Error()}
	default:
		return map[string]string{"registration": err.Error()}
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field/message map for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
