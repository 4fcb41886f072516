package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSWithOptions(t *testing.T) {
	defaultMethods := "GET,HEAD,POST,PUT,PATCH,OPTIONS"

	tests := []struct {
		options         *CORSOptions
		expectedHeaders map[string]string
		name            string
		method          string
		origin          string
		preflight       bool
		expectedStatus  int
	}{
		{
			name:    "default options without origin",
			method:  http.MethodGet,
			options: nil,
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "*",
				"Access-Control-Allow-Methods":     defaultMethods,
				"Access-Control-Expose-Headers":    RequestIDHeader,
				"Access-Control-Allow-Credentials": "true",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "credentialed wildcard echoes origin",
			method:  http.MethodGet,
			origin:  "http://app.example.com",
			options: nil,
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin": "http://app.example.com",
				"Vary":                        "Origin",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "custom options allowed origin",
			method: http.MethodGet,
			origin: "http://example.com",
			options: &CORSOptions{
				AllowedOrigins: []string{"http://example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type"},
			},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "http://example.com",
				"Access-Control-Allow-Methods":     "GET,POST",
				"Access-Control-Allow-Headers":     "Content-Type",
				"Access-Control-Allow-Credentials": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "custom options foreign origin",
			method: http.MethodGet,
			origin: "http://evil.example",
			options: &CORSOptions{
				AllowedOrigins: []string{"http://example.com"},
			},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "empty options",
			method:  http.MethodGet,
			origin:  "http://example.com",
			options: &CORSOptions{},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "",
				"Access-Control-Allow-Methods": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:      "preflight request",
			method:    http.MethodOptions,
			preflight: true,
			options:   nil,
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": defaultMethods,
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "plain options request reaches handler",
			method:         http.MethodOptions,
			options:        nil,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://example.com", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rr := httptest.NewRecorder()

			handler := CORSWithOptions(tt.options)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			for header, expectedValue := range tt.expectedHeaders {
				assert.Equal(t, expectedValue, rr.Header().Get(header), header)
			}
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}
