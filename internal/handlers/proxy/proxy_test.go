package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"analyzer-api/internal/agents"
	gwctx "analyzer-api/internal/ctx"
	"analyzer-api/internal/shared"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newGatewayServer(t *testing.T, downstreamURL string) *httptest.Server {
	t.Helper()
	log := zap.NewNop().Sugar()
	handler := NewHandler(log, agents.NewRegistry(agents.DefaultAgents), NewClient(downstreamURL, "internal-key"), nil)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &gwctx.Context{
				Context:   c,
				Log:       log,
				Reqid:     "test",
				User:      &shared.UserMetadata{UserID: 1, Username: "tester"},
				LogValues: &gwctx.ContextLogValues{},
			}
			return next(cc)
		}
	})
	e.POST("/agent", handler.HandleAgentRequest)

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return ts
}

func postAgent(t *testing.T, gatewayURL string, body map[string]any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(gatewayURL+"/agent", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body shared.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Detail
}

func TestHandleRejectsUnknownAgent(t *testing.T) {
	var calls atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{"agent": "rogue"})

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	detail := decodeDetail(t, resp)
	if !strings.Contains(detail, "Invalid agent specified") {
		t.Errorf("detail = %q, want invalid-agent message", detail)
	}
	if !strings.Contains(detail, "sql-bot") {
		t.Errorf("detail = %q, want allowed agents listed", detail)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("downstream called %d times, want 0", got)
	}
}

func TestBufferedPassthrough(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dormant" {
			t.Errorf("path = %q, want /dormant", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "internal-key" {
			t.Errorf("x-api-key = %q, want internal-key", got)
		}
		if got := r.Header.Get("x-internal-caller"); got != "1" {
			t.Errorf("x-internal-caller = %q, want 1", got)
		}
		if got := r.URL.Query().Get("account"); got != "42" {
			t.Errorf("account query param = %q, want 42", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer": 42, "items": ["x", "y"]}`)
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{
		"agent":  "dormant",
		"params": map[string]any{"account": 42},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]any{"answer": float64(42), "items": []any{"x", "y"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

func TestBufferedMirrorsDownstreamError(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad gateway")
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{"agent": "compliance"})

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if detail := decodeDetail(t, resp); detail != "Downstream service error: bad gateway" {
		t.Errorf("detail = %q", detail)
	}
}

func TestBufferedTransportFailure(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{"agent": "dormant"})

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if detail := decodeDetail(t, resp); detail != "The downstream AI agent service is currently unavailable." {
		t.Errorf("detail = %q", detail)
	}
}

func TestBufferedMalformedJSON(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "definitely not json")
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{"agent": "ia-chat"})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if detail := decodeDetail(t, resp); detail != "internal server error" {
		t.Errorf("detail = %q, downstream detail must not leak", detail)
	}
}

func TestStreamRelaysChunks(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("streaming"); got != "true" {
			t.Errorf("streaming query param = %q, want true", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"a", "b", "c"} {
			fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{
		"agent":  "sql-bot",
		"params": map[string]any{"streaming": true},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(body) != "abc" {
		t.Errorf("relayed body = %q, want %q", body, "abc")
	}
}

func TestStreamDownstreamErrorStatus(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{
		"agent":  "dormant",
		"params": map[string]any{"streaming": true},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (errors are in-band once streaming)", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	want := `data: {"type":"error","message":"Downstream error: boom"}` + "\n\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamTransportFailure(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downstream.Close()

	ts := newGatewayServer(t, downstream.URL)
	resp := postAgent(t, ts.URL, map[string]any{
		"agent":  "dormant",
		"params": map[string]any{"streaming": true},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	want := `data: {"type":"error","message":"Downstream service is unavailable."}` + "\n\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamCallerDisconnectCancelsDownstream(t *testing.T) {
	downstreamDone := make(chan struct{})
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "first")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			close(downstreamDone)
		case <-time.After(5 * time.Second):
		}
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)

	payload, _ := json.Marshal(map[string]any{
		"agent":  "ia-chat",
		"params": map[string]any{"streaming": true},
	})
	reqCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ts.URL+"/agent", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	buf := make([]byte, 16)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("read first chunk: %v", err)
	}
	cancel()

	select {
	case <-downstreamDone:
	case <-time.After(3 * time.Second):
		t.Fatal("downstream request was not canceled after caller disconnect")
	}
}

func TestConcurrentRequestsIndependent(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/") == "compliance" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "compliance down")
			return
		}
		fmt.Fprintf(w, `{"agent": %q}`, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer downstream.Close()

	ts := newGatewayServer(t, downstream.URL)

	var g errgroup.Group
	for range 4 {
		for _, tc := range []struct {
			agent      string
			wantStatus int
		}{
			{"dormant", 200},
			{"sql-bot", 200},
			{"compliance", 500},
			{"rogue", 400},
		} {
			g.Go(func() error {
				payload, _ := json.Marshal(map[string]any{"agent": tc.agent})
				resp, err := http.Post(ts.URL+"/agent", "application/json", bytes.NewReader(payload))
				if err != nil {
					return err
				}
				defer func() { _ = resp.Body.Close() }()
				if resp.StatusCode != tc.wantStatus {
					return fmt.Errorf("agent %s: status %d, want %d", tc.agent, resp.StatusCode, tc.wantStatus)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}
