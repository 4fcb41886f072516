package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/edgeflare/sqlrest/pkg/httputil"
)

// BasicAuthOptions configure BasicAuth.
type BasicAuthOptions struct {
	// Credentials, when non-empty, are verified locally. Otherwise the
	// presented credentials pass through unverified for the database to
	// authenticate.
	Credentials map[string]string
	// DeniedUsers are refused with 403 before anything else happens.
	DeniedUsers []string
	// OnError writes rejections; httputil.Error when nil.
	OnError func(w http.ResponseWriter, r *http.Request, status int, message string)
}

// AuthError is a rejected Authorization header.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ParseBasicAuth extracts credentials from an Authorization header value.
func ParseBasicAuth(header string) (httputil.Credentials, error) {
	if header == "" {
		return httputil.Credentials{}, &AuthError{http.StatusUnauthorized, "User is required."}
	}

	scheme, encoded, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Basic") {
		return httputil.Credentials{}, &AuthError{http.StatusBadRequest, "Invalid authorization type."}
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return httputil.Credentials{}, &AuthError{http.StatusBadRequest, "Invalid authorization header."}
	}
	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return httputil.Credentials{}, &AuthError{http.StatusBadRequest, "Invalid authorization header."}
	}
	if user == "" {
		return httputil.Credentials{}, &AuthError{http.StatusUnauthorized, "User is required."}
	}

	return httputil.Credentials{User: user, Password: password}, nil
}

// BasicAuth extracts HTTP basic credentials into the request context.
// Retrieve them with httputil.BasicAuthCredentials.
func BasicAuth(opts *BasicAuthOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &BasicAuthOptions{}
	}
	onError := opts.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, status int, message string) {
			httputil.Error(w, status, message)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, err := ParseBasicAuth(r.Header.Get("Authorization"))
			if err != nil {
				authErr := err.(*AuthError)
				if authErr.Status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Basic realm="sqlrest"`)
				}
				onError(w, r, authErr.Status, authErr.Message)
				return
			}

			if denied(opts.DeniedUsers, creds.User) {
				onError(w, r, http.StatusForbidden, fmt.Sprintf("User %s is not allowed.", creds.User))
				return
			}

			if len(opts.Credentials) > 0 && !validPassword(opts.Credentials, creds) {
				w.Header().Set("WWW-Authenticate", `Basic realm="sqlrest"`)
				onError(w, r, http.StatusUnauthorized, "Invalid credentials.")
				return
			}

			noteUser(r.Context(), creds.User)
			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// denied matches user against the deny list ignoring case.
func denied(users []string, user string) bool {
	return slices.ContainsFunc(users, func(u string) bool {
		return strings.EqualFold(u, user)
	})
}

func validPassword(known map[string]string, creds httputil.Credentials) bool {
	want, ok := known[creds.User]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(creds.Password)) == 1
}
