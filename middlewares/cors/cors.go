// Package cors implements Cross-Origin Resource Sharing middleware for
// mizu routers.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/defektu/node-oscquery"
)

// Options configures the CORS middleware.
type Options struct {
	AllowOrigins        []string
	AllowOriginFunc     func(origin string) bool
	AllowMethods        []string
	AllowHeaders        []string
	ExposeHeaders       []string
	AllowCredentials    bool
	AllowPrivateNetwork bool
	MaxAge              time.Duration
}

// AllowAll returns CORS middleware that allows any origin.
func AllowAll() mizu.Middleware {
	return New(Options{AllowOrigins: []string{"*"}})
}

// WithOrigins returns CORS middleware allowing exactly the given origins.
func WithOrigins(origins ...string) mizu.Middleware {
	return New(Options{AllowOrigins: origins})
}

// New returns CORS middleware configured by opts.
func New(opts Options) mizu.Middleware {
	methods := opts.AllowMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	headers := opts.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}

	allowed := func(origin string) bool {
		if opts.AllowOriginFunc != nil {
			return opts.AllowOriginFunc(origin)
		}
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}

	return func(next mizu.Handler) mizu.Handler {
		return func(c *mizu.Ctx) error {
			origin := c.Request().Header.Get("Origin")
			if origin == "" {
				return next(c)
			}
			if !allowed(origin) {
				return next(c)
			}

			h := c.Header()
			h.Add("Vary", "Origin")

			allowOrigin := origin
			if !opts.AllowCredentials {
				for _, o := range opts.AllowOrigins {
					if o == "*" {
						allowOrigin = "*"
						break
					}
				}
			}
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if opts.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(opts.ExposeHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(opts.ExposeHeaders, ", "))
			}

			if c.Request().Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
				h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
				if opts.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(opts.MaxAge.Seconds())))
				}
				if opts.AllowPrivateNetwork && c.Request().Header.Get("Access-Control-Request-Private-Network") == "true" {
					h.Set("Access-Control-Allow-Private-Network", "true")
				}
				c.Status(http.StatusNoContent)
				return c.NoContent()
			}

			return next(c)
		}
	}
}
