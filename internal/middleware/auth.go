package middleware

import (
	"analyzer-api/internal/ctx"
	"analyzer-api/internal/shared"
	"analyzer-api/internal/users"

	"github.com/labstack/echo/v4"
)

type UserMiddleware struct {
	users *users.Manager
}

func NewUserMiddleware(manager *users.Manager) *UserMiddleware {
	return &UserMiddleware{users: manager}
}

// ExtractUser attaches the validated identity to the request context when a
// valid bearer token is present. It never rejects; RequireUser does that.
func (u *UserMiddleware) ExtractUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		c.User = nil

		token, err := shared.ExtractAPIKey(c)
		if err != nil {
			return next(c)
		}
		user, err := u.users.GetUserFromToken(c.Request().Context(), token)
		if err != nil {
			return next(c)
		}
		c.User = user
		c.Log = c.Log.With("user_id", user.UserID)
		c.LogValues.UserID = user.UserID
		c.LogValues.Username = user.Username
		c.LogValues.IsAdmin = user.IsAdmin
		return next(c)
	}
}

func (u *UserMiddleware) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if c.User == nil {
			return c.String(401, "unauthorized")
		}
		return next(c)
	}
}

func (u *UserMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if c.User == nil {
			return c.String(401, "unauthorized")
		}
		if !c.User.IsAdmin {
			return c.String(403, "forbidden")
		}
		return next(c)
	}
}
