// Package proxy forwards authenticated requests to the downstream AI agent
// service, either buffered or as a relayed event-stream.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"analyzer-api/internal/shared"
)

// Client issues requests to the downstream agent service. One Client is
// built at startup and shared by all requests; both underlying http clients
// reuse the same pooled transport.
type Client struct {
	baseURL string
	apiKey  string

	buffered  *http.Client
	streaming *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
		DisableKeepAlives:   false,
		MaxIdleConnsPerHost: 32,
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		buffered: &http.Client{Transport: tr, Timeout: shared.BufferedRequestTimeout},
		// The stream deadline is enforced per request via context so a client
		// timeout does not cut long bodies short.
		streaming: &http.Client{Transport: tr},
	}
}

func (c *Client) newAgentRequest(ctx context.Context, agent string, params map[string]any) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+agent, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for key, value := range params {
		q.Set(key, paramString(value))
	}
	req.URL.RawQuery = q.Encode()

	// Internal caller headers let the agent service distinguish trusted
	// gateway traffic from external traffic.
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-internal-caller", "1")
	return req, nil
}

func paramString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// FetchBuffered performs one fully buffered call to the agent. Any HTTP
// status, including >= 400, is returned with its body; only transport-level
// failures (dial, DNS, timeout, reset) produce an error.
func (c *Client) FetchBuffered(ctx context.Context, agent string, params map[string]any) (int, []byte, error) {
	req, err := c.newAgentRequest(ctx, agent, params)
	if err != nil {
		return 0, nil, errors.Join(shared.ErrFailedAgentReq, err)
	}

	res, err := c.buffered.Do(req)
	if err != nil {
		return 0, nil, errors.Join(shared.ErrFailedAgentReq, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, errors.Join(shared.ErrFailedReadingResponse, err)
	}
	return res.StatusCode, body, nil
}

// OpenStream establishes a streaming connection to the agent. The returned
// handle exposes the response status before any body bytes are consumed and
// a lazy, non-restartable chunk sequence. The whole stream runs under a hard
// deadline of shared.StreamRequestTimeout.
func (c *Client) OpenStream(ctx context.Context, agent string, params map[string]any) (*StreamHandle, error) {
	sctx, cancel := context.WithTimeout(ctx, shared.StreamRequestTimeout)

	req, err := c.newAgentRequest(sctx, agent, params)
	if err != nil {
		cancel()
		return nil, errors.Join(shared.ErrFailedAgentReq, err)
	}

	res, err := c.streaming.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Join(shared.ErrFailedAgentReq, err)
	}

	return &StreamHandle{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		body:       res.Body,
		cancel:     cancel,
	}, nil
}

// StreamHandle is one open streaming response. It is not safe for concurrent
// use and must be closed exactly once.
type StreamHandle struct {
	StatusCode int
	Header     http.Header

	body   io.ReadCloser
	cancel context.CancelFunc
	closed bool
}

// Next reads the next raw chunk into buf. It follows io.Reader semantics:
// n > 0 with a nil or non-nil error, io.EOF at end of stream.
func (h *StreamHandle) Next(buf []byte) (int, error) {
	return h.body.Read(buf)
}

// ErrorBody drains the remaining body. It must be called before Close, while
// the underlying transport is still open, and at most once.
func (h *StreamHandle) ErrorBody() ([]byte, error) {
	return io.ReadAll(h.body)
}

// Close releases the underlying connection. Safe to call once per handle;
// repeated calls are no-ops.
func (h *StreamHandle) Close() {
	if h.closed {
		return
	}
	h.closed = true
	_ = h.body.Close()
	h.cancel()
}
