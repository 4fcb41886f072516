// Package middleware provides the http.Handler wrappers sqlrest installs
// around its routes: request ids, request logging, CORS and basic auth.
package middleware

import (
	"net/http"

	"github.com/edgeflare/sqlrest/pkg/httputil"
)

// Chain wraps h so that middlewares run in the order given; the first one
// sees the request first.
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
