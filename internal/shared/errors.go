package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Sane defaults are listed below. For routes that need custom error messages,
// a request error can be generated and a handler expects the router to return
// the exact message inside the request error msg.
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the user. If the user should see a generic error message but
// the error chain should include more detail for logging purposes, then a generic
// error should be added that provides context.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}
	ErrForbidden     = &RequestError{Err: errors.New("forbidden"), StatusCode: 403}

	ErrInvalidRequest = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrNotFound            = &RequestError{Err: errors.New("not found"), StatusCode: 404}

	ErrFailedAgentReq         = &GatewayError{Msg: "failed to send http request to agent", Code: "agent_http_err"}
	ErrFailedAgentReqFromCode = &GatewayError{Msg: "agent responded with non-200", Code: "agent_http_status_err"}
	ErrFailedReadingResponse  = &GatewayError{Msg: "failed to read agent response", Code: "agent_response_err"}
	ErrMalformedAgentJSON     = &GatewayError{Msg: "agent responded with malformed json", Code: "agent_bad_json"}
)

// GatewayError carries a stable code for metrics labels alongside the
// human-readable message.
type GatewayError struct {
	Msg  string
	Code string
}

func (g *GatewayError) Error() string {
	return g.String()
}

func (g *GatewayError) String() string {
	return g.Msg
}
