package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newAuthContext(authorization string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractAPIKey(t *testing.T) {
	token, err := ExtractAPIKey(newAuthContext("Bearer abc123"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}

	// scheme is case-insensitive
	if token, err = ExtractAPIKey(newAuthContext("bearer xyz")); err != nil || token != "xyz" {
		t.Errorf("lowercase scheme: token=%q err=%v", token, err)
	}
}

func TestExtractAPIKeyRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		authorization string
		wantErr       *RequestError
	}{
		{"", ErrMissingAuth},
		{"abc123", ErrInvalidFormat},
		{"Basic abc123", ErrInvalidFormat},
		{"Bearer a b", ErrInvalidFormat},
	}
	for _, tc := range tests {
		_, err := ExtractAPIKey(newAuthContext(tc.authorization))
		if err != tc.wantErr {
			t.Errorf("ExtractAPIKey(%q) err = %v, want %v", tc.authorization, err, tc.wantErr)
		}
	}
}
