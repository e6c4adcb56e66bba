// Package routers
package routers

import (
	"errors"

	"analyzer-api/internal/agents"
	"analyzer-api/internal/audit"
	"analyzer-api/internal/handlers/proxy"
	"analyzer-api/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ProxyConfig struct {
	AgentEndpoint  string
	InternalAPIKey string
	AllowedAgents  []string
}

func RegisterProxyRoutes(e *echo.Group, cfg ProxyConfig, umw *middleware.UserMiddleware, auditCache *audit.Cache, log *zap.SugaredLogger) error {
	if cfg.AgentEndpoint == "" {
		return errors.New("agent endpoint is required")
	}
	if len(cfg.AllowedAgents) == 0 {
		cfg.AllowedAgents = agents.DefaultAgents
	}

	registry := agents.NewRegistry(cfg.AllowedAgents)
	client := proxy.NewClient(cfg.AgentEndpoint, cfg.InternalAPIKey)
	handler := proxy.NewHandler(log, registry, client, auditCache)

	requireUser := e.Group("", umw.ExtractUser, umw.RequireUser)
	requireUser.POST("/agent", handler.HandleAgentRequest)
	return nil
}
