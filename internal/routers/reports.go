package routers

import (
	"database/sql"

	"analyzer-api/internal/handlers/reports"
	"analyzer-api/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func RegisterReportRoutes(e *echo.Group, rdb *sql.DB, umw *middleware.UserMiddleware, log *zap.SugaredLogger) {
	handler := reports.NewHandler(log, rdb)

	requireUser := e.Group("/reports", umw.ExtractUser, umw.RequireUser)
	requireUser.GET("/:key", handler.Export)
}
