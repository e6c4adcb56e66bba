package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"analyzer-api/internal/agents"
	"analyzer-api/internal/audit"
	"analyzer-api/internal/ctx"
	"analyzer-api/internal/metrics"
	"analyzer-api/internal/shared"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler is the proxy orchestrator: it validates the target agent, picks
// buffered or streaming mode, dispatches to the downstream client and maps
// failures to caller-facing responses.
type Handler struct {
	Log      *zap.SugaredLogger
	Registry *agents.Registry
	Client   *Client
	Audit    *audit.Cache
}

func NewHandler(log *zap.SugaredLogger, registry *agents.Registry, client *Client, auditCache *audit.Cache) *Handler {
	return &Handler{
		Log:      log,
		Registry: registry,
		Client:   client,
		Audit:    auditCache,
	}
}

// HandleAgentRequest proxies one request to a downstream agent.
//
// Validation failures are returned as request-level JSON errors. Once a
// streaming response has started, every failure is converted into an in-band
// terminal event instead; the caller always receives well-formed framing.
func (h *Handler) HandleAgentRequest(cc echo.Context) error {
	c := cc.(*ctx.Context)
	start := time.Now()

	var payload shared.AgentProxyRequest
	if err := c.Bind(&payload); err != nil {
		c.LogValues.AddError(errors.Join(shared.ErrInvalidRequest, err))
		return c.JSON(http.StatusBadRequest, shared.ErrorResponse{Detail: "invalid request body"})
	}
	if payload.Params == nil {
		payload.Params = map[string]any{}
	}

	if !h.Registry.IsAllowed(payload.Agent) {
		c.Log.Warnw("Rejected disallowed agent", "agent", payload.Agent)
		return c.JSON(http.StatusBadRequest, shared.ErrorResponse{
			Detail: fmt.Sprintf("Invalid agent specified. Allowed agents are: %s", strings.Join(h.Registry.Names(), ", ")),
		})
	}

	stream := shared.GetBool(payload.Params, "streaming")
	c.LogValues.Agent = payload.Agent
	c.LogValues.Stream = stream
	c.Log.Infow("User initiated proxy request", "agent", payload.Agent, "stream", stream)

	metrics.InflightRequests.WithLabelValues(payload.Agent).Inc()
	defer metrics.InflightRequests.WithLabelValues(payload.Agent).Dec()
	if h.Audit != nil && c.User != nil {
		h.Audit.AddInFlight(c.User.UserID)
	}

	var status int
	var chunks int
	var handlerErr error
	mode := "buffered"
	switch stream {
	case true:
		mode = "stream"
		stats := h.streamAgent(c, payload.Agent, payload.Params)
		status = http.StatusOK
		chunks = stats.Chunks
	case false:
		status, handlerErr = h.bufferedAgent(c, payload.Agent, payload.Params)
	}

	duration := time.Since(start)
	metrics.RequestDuration.WithLabelValues(payload.Agent, mode).Observe(duration.Seconds())
	metrics.RequestCount.WithLabelValues(payload.Agent, mode, fmt.Sprintf("%d", status)).Inc()

	if h.Audit != nil && c.User != nil {
		h.Audit.Add(&shared.ProxyRecord{
			UserID:        c.User.UserID,
			RequestID:     c.Reqid,
			Agent:         payload.Agent,
			Stream:        stream,
			StatusCode:    status,
			ChunksRelayed: chunks,
			TotalTime:     duration,
			CreatedAt:     time.Now(),
		})
	}
	return handlerErr
}

// bufferedAgent performs a buffered downstream call and writes the caller
// response. The returned status is what the caller saw, for bookkeeping.
func (h *Handler) bufferedAgent(c *ctx.Context, agent string, params map[string]any) (int, error) {
	status, body, err := h.Client.FetchBuffered(c.Request().Context(), agent, params)
	if err != nil {
		c.LogValues.AddError(err)
		c.LogValues.LogLevel = "ERROR"
		metrics.ErrorCount.WithLabelValues(agent, "buffered", "transport").Inc()
		return http.StatusServiceUnavailable, c.JSON(http.StatusServiceUnavailable, shared.ErrorResponse{
			Detail: "The downstream AI agent service is currently unavailable.",
		})
	}

	if status >= 400 {
		c.LogValues.AddError(errors.Join(shared.ErrFailedAgentReqFromCode,
			fmt.Errorf("agent %s returned status %d", agent, status)))
		metrics.ErrorCount.WithLabelValues(agent, "buffered", "downstream").Inc()
		return status, c.JSON(status, shared.ErrorResponse{
			Detail: fmt.Sprintf("Downstream service error: %s", body),
		})
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// The agent answered 2xx with a body we cannot parse. Full detail is
		// logged; the caller only gets a generic message.
		c.LogValues.AddError(errors.Join(shared.ErrMalformedAgentJSON, err))
		c.LogValues.LogLevel = "ERROR"
		metrics.ErrorCount.WithLabelValues(agent, "buffered", "unexpected").Inc()
		return http.StatusInternalServerError, c.JSON(http.StatusInternalServerError, shared.ErrorResponse{
			Detail: shared.ErrInternalServerError.Err.Error(),
		})
	}

	return http.StatusOK, c.JSON(http.StatusOK, decoded)
}

// streamAgent opens a downstream stream and relays it. The SSE framing is
// committed before the downstream call, so connection failures surface as
// the relay's in-band unavailability frame rather than an HTTP error.
func (h *Handler) streamAgent(c *ctx.Context, agent string, params map[string]any) RelayStats {
	setupSSEHeaders(c)
	emit := newStreamWriter(c)

	stats := RelayStats{}
	handle, err := h.Client.OpenStream(c.Request().Context(), agent, params)
	if err != nil {
		c.LogValues.AddError(err)
		c.LogValues.LogLevel = "ERROR"
		stats.ErrorEmitted = emit(ErrorFrame(unavailableMessage)) == nil
	} else {
		stats = Relay(c.Request().Context(), handle, emit, c.Log)
	}

	if stats.ErrorEmitted {
		metrics.ErrorCount.WithLabelValues(agent, "stream", "downstream").Inc()
	}
	if stats.Chunks > 0 {
		metrics.ChunksRelayed.WithLabelValues(agent).Add(float64(stats.Chunks))
		metrics.TimeToFirstChunk.WithLabelValues(agent).Observe(stats.TimeToFirstChunk.Seconds())
	}
	c.LogValues.ChunksRelayed = stats.Chunks
	return stats
}

func setupSSEHeaders(c *ctx.Context) {
	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

func newStreamWriter(c *ctx.Context) EmitFunc {
	return func(frame []byte) error {
		if err := c.Request().Context().Err(); err != nil {
			return err
		}
		if _, err := c.Response().Write(frame); err != nil {
			return err
		}
		c.Response().Flush()
		return nil
	}
}
