// Package mid contains the set of middleware functions.
package mid

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powledger/foundation/web"
)

// Methods and headers a browser based wallet may use against the node.
const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Accept, Content-Type, Content-Length"
	corsMaxAge  = 10 * time.Minute
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing
// when the request origin is in the allowed list. An entry of "*" allows
// every origin. Preflight requests are answered here and never reach the
// route handler.
func Cors(origins ...string) web.Middleware {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	_, wildcard := allowed["*"]

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return handler(ctx, w, r)
			}

			w.Header().Add("Vary", "Origin")

			if _, ok := allowed[origin]; !ok && !wildcard {
				return handler(ctx, w, r)
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", corsMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(corsMaxAge.Seconds())))
				return web.Respond(ctx, w, nil, http.StatusNoContent)
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
