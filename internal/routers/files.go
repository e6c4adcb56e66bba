package routers

import (
	"database/sql"

	"analyzer-api/internal/handlers/uploads"
	"analyzer-api/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func RegisterFileRoutes(e *echo.Group, wdb *sql.DB, rdb *sql.DB, uploadDir string, umw *middleware.UserMiddleware, log *zap.SugaredLogger) error {
	handler, err := uploads.NewHandler(log, wdb, rdb, uploadDir)
	if err != nil {
		return err
	}

	requireUser := e.Group("/files", umw.ExtractUser, umw.RequireUser)
	requireUser.POST("", handler.Upload)
	requireUser.GET("", handler.List)
	requireUser.DELETE("/:id", handler.Delete)
	return nil
}
