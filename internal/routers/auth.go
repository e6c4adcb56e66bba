package routers

import (
	"fmt"
	"net/http"

	"analyzer-api/internal/ctx"
	"analyzer-api/internal/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterAuthRoutes(e *echo.Group, umw *middleware.UserMiddleware) {
	requireUser := e.Group("/auth", umw.ExtractUser, umw.RequireUser)
	requireUser.GET("/me", Me)

	requireAdmin := e.Group("/auth", umw.ExtractUser, umw.RequireAdmin)
	requireAdmin.GET("/admin-only", AdminOnly)
}

// Me returns the authenticated caller's profile, as resolved by the
// identity validator.
func Me(cc echo.Context) error {
	c := cc.(*ctx.Context)
	c.Log.Infow("Fetching profile for authenticated user", "username", c.User.Username)
	return c.JSON(http.StatusOK, c.User)
}

// AdminOnly is an admin-gated probe route.
func AdminOnly(cc echo.Context) error {
	c := cc.(*ctx.Context)
	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Welcome, admin %s!", c.User.Username),
	})
}
