package rest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/zipcard/zipcard"
)

const (
	sessionLocalsKey = "session"
	userLocalsKey    = "user"
)

type AuthController struct {
	SessionStore zipcard.SessionStore
	UserStore    zipcard.UserStore
}

func (c *AuthController) InstallTo(requestAuthorizer fiber.Handler, app *fiber.App) {
	app.Post("/auth/register", c.serveRegister)
	app.Post("/auth/logout", combineHandlers(requestAuthorizer, c.serveLogout))
}

func (c *AuthController) serveRegister(ctx *fiber.Ctx) error {
	body := struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}{}
	if err := ctx.BodyParser(&body); err != nil {
		requestLog(ctx).WithError(err).Infoln("Invalid body.")
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.TrimSpace(body.Email)
	if body.Username == "" || body.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing username or email")
	}

	user, err := c.UserStore.Register(ctx.Context(), body.Username, body.Email)
	if err != nil {
		return fmt.Errorf("user register: %w", err)
	}

	session, err := c.SessionStore.RegisterNew(ctx.Context(), user.Id, ctx.IP(),
		string(ctx.Request().Header.UserAgent()))
	if err != nil {
		return fmt.Errorf("session register: %w", err)
	}

	return ctx.JSON(map[string]interface{}{
		"userId":      user.Id,
		"username":    user.Username,
		"accessToken": session.Token,
	})
}

func (c *AuthController) serveLogout(ctx *fiber.Ctx) error {
	session, ok := ctx.Locals(sessionLocalsKey).(zipcard.Session)
	if !ok {
		return fiber.ErrUnauthorized
	}
	return c.SessionStore.InvalidateByAuthToken(session.Token)
}

func RequestAuthorizer(sessionStore zipcard.SessionStore, userStore zipcard.UserStore) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		auth := ctx.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return fiber.ErrUnauthorized
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			return fiber.NewError(fiber.ErrBadRequest.Code, "invalid auth type")
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		session, err := sessionStore.AcquireAndRefresh(ctx.Context(), token, ctx.IP(),
			string(ctx.Request().Header.UserAgent()))
		if err != nil {
			if errors.Is(err, zipcard.ErrSessionNotFound) {
				return fiber.ErrUnauthorized
			} else {
				return fmt.Errorf("acquire and refresh session: %w", err)
			}
		}
		user, err := userStore.ById(ctx.Context(), session.UserId)
		if err != nil {
			return fmt.Errorf("retrieve user by id: %w", err)
		}

		ctx.Locals(sessionLocalsKey, session)
		ctx.Locals(userLocalsKey, user)
		return nil
	}
}
