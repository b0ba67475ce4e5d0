package auth

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// MsgProfileUpdated is flashed after a successful profile mutation.
const MsgProfileUpdated = "Profile updated successfully."

const pictureField = "profile_picture"

// maxMultipartBody caps how much of an upload request body we will buffer
// before handing the file to the asset store for validation.
const maxMultipartBody = 16 << 20

// RegisterProfileRoutes mounts the profile pages behind the session guard.
func RegisterProfileRoutes[T any](app router.Router[T], controller *ProfileController) {
	authed := controller.Guards.RequireAuthenticated()

	app.Get(controller.Routes.Profile, controller.Show, authed).
		SetName("profile.get")
	app.Post(controller.Routes.Profile, controller.Update, authed).
		SetName("profile.post")

	app.Post(controller.Routes.Picture, controller.UploadPicture, authed).
		SetName("profile-picture.post")
	app.Post(controller.Routes.PictureRemove, controller.RemovePicture, authed).
		SetName("profile-picture-remove.post")
}

type ProfileControllerRoutes struct {
	Profile       string
	Picture       string
	PictureRemove string
}

// ProfileController serves the signed-in account pages: viewing and editing
// the profile, and managing the profile picture.
type ProfileController struct {
	Logger   Logger
	Auth     *Service
	Sessions *SessionManager
	Guards   *Guards
	Avatars  AvatarStore
	Routes   *ProfileControllerRoutes
	View     string
}

func NewProfileController(auth *Service, sessions *SessionManager, guards *Guards, avatars AvatarStore) *ProfileController {
	return &ProfileController{
		Logger:   defLogger{},
		Auth:     auth,
		Sessions: sessions,
		Guards:   guards,
		Avatars:  avatars,
		View:     "profile",
		Routes: &ProfileControllerRoutes{
			Profile:       "/profile",
			Picture:       "/profile/picture",
			PictureRemove: "/profile/picture/remove",
		},
	}
}

func (a *ProfileController) WithLogger(logger Logger) *ProfileController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *ProfileController) Show(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	profile, err := a.Auth.Profile(ctx.Context(), uid)
	if err != nil {
		a.Logger.Error("profile lookup error: ", "error", err)
		return defaultErrHandler(ctx, err)
	}

	return ctx.Render(a.View, router.ViewContext{
		"record": profile,
		"errors": map[string]string{},
	})
}

// ProfileUpdatePayload is the profile edit form. Blank fields keep their
// stored values.
type ProfileUpdatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Email     string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ProfileUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Length(0, 100), is.Email),
	)
}

func (a *ProfileController) Update(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	payload := new(ProfileUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.View, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.View, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	profile, err := a.Auth.UpdateProfile(ctx.Context(), uid, UpdateProfileInput{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
	})
	if err != nil {
		if !IsBusinessError(err) {
			a.Logger.Error("profile update error: ", "error", err)
		}
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Profile update failed",
		}).Render(a.View, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"profile": err.Error()},
		})
	}

	// refresh the session snapshot so pages render the new values
	if err := a.Sessions.SignIn(ctx, profile); err != nil {
		a.Logger.Error("profile session refresh error: ", "error", err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgProfileUpdated,
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

// UploadPicture stores a new profile picture. The asset is written first and
// the account metadata second; if the metadata write fails the freshly
// stored asset is removed again.
func (a *ProfileController) UploadPicture(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	file, err := a.multipartFile(ctx, pictureField)
	if err != nil {
		return a.pictureError(ctx, uid, err)
	}

	if err := a.Avatars.Validate(file.name, file.size); err != nil {
		return a.pictureError(ctx, uid, err)
	}

	path, err := a.Avatars.Save(uid.String(), file.name, bytes.NewReader(file.data))
	if err != nil {
		a.Logger.Error("profile picture store error: ", "error", err)
		return a.pictureError(ctx, uid, errors.New("could not store the uploaded file, please try again"))
	}

	profile, err := a.Auth.UpdateProfilePicture(ctx.Context(), uid, &path)
	if err != nil {
		// metadata write failed, roll the asset back
		if rerr := a.Avatars.Remove(path); rerr != nil {
			a.Logger.Warn("profile picture rollback failed", "path", path, "error", rerr)
		}
		if !IsBusinessError(err) {
			a.Logger.Error("profile picture update error: ", "error", err)
		}
		return a.pictureError(ctx, uid, err)
	}

	if err := a.Sessions.SignIn(ctx, profile); err != nil {
		a.Logger.Error("profile session refresh error: ", "error", err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgProfileUpdated,
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

// RemovePicture clears the stored picture. Metadata clears first so the
// account never references a deleted asset.
func (a *ProfileController) RemovePicture(ctx router.Context) error {
	uid, ok := a.Sessions.CurrentUserID(ctx)
	if !ok {
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	current, err := a.Auth.Profile(ctx.Context(), uid)
	if err != nil {
		return a.pictureError(ctx, uid, err)
	}

	profile, err := a.Auth.UpdateProfilePicture(ctx.Context(), uid, nil)
	if err != nil {
		if !IsBusinessError(err) {
			a.Logger.Error("profile picture remove error: ", "error", err)
		}
		return a.pictureError(ctx, uid, err)
	}

	if current.ProfilePicture != nil {
		if err := a.Avatars.Remove(*current.ProfilePicture); err != nil {
			a.Logger.Warn("stored picture cleanup failed", "path", *current.ProfilePicture, "error", err)
		}
	}

	if err := a.Sessions.SignIn(ctx, profile); err != nil {
		a.Logger.Error("profile session refresh error: ", "error", err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": MsgProfileUpdated,
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

type uploadedFile struct {
	name string
	size int64
	data []byte
}

// multipartFile pulls the named file part out of the request body. The
// router surface exposes the raw body only, so the multipart envelope is
// decoded here.
func (a *ProfileController) multipartFile(ctx router.Context, field string) (*uploadedFile, error) {
	_, params, err := mime.ParseMediaType(ctx.Header("Content-Type"))
	if err != nil || params["boundary"] == "" {
		return nil, errors.New("expected a multipart form upload")
	}

	body := ctx.Body()
	if len(body) > maxMultipartBody {
		return nil, errors.New("upload is too large")
	}

	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New("could not parse the upload")
		}

		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxMultipartBody+1))
		part.Close()
		if err != nil {
			return nil, errors.New("could not read the upload")
		}
		if len(data) > maxMultipartBody {
			return nil, errors.New("upload is too large")
		}

		return &uploadedFile{
			name: part.FileName(),
			size: int64(len(data)),
			data: data,
		}, nil
	}

	return nil, errors.New("no file was selected")
}

func (a *ProfileController) pictureError(ctx router.Context, uid uuid.UUID, cause error) error {
	record, err := a.Auth.Profile(ctx.Context(), uid)
	if err != nil {
		record = nil
	}

	return flash.WithError(ctx, router.ViewContext{
		"error_message":  cause.Error(),
		"system_message": "Profile picture update failed",
	}).Render(a.View, router.ViewContext{
		"record": record,
		"errors": map[string]string{"picture": cause.Error()},
	})
}
