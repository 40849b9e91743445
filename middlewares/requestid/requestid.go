// Package requestid assigns a unique ID to every request, propagating it
// via a response header and the request context.
package requestid

import (
	"context"

	"github.com/defektu/node-oscquery"
	"github.com/google/uuid"
)

type ctxKey struct{}

// Options configures the request ID middleware.
type Options struct {
	Header    string
	Generator func() string
}

func generateID() string {
	return uuid.New().String()
}

// New returns request ID middleware using the default header (X-Request-ID)
// and a UUIDv4 generator.
func New() mizu.Middleware {
	return WithOptions(Options{})
}

// WithOptions returns request ID middleware configured by opts.
func WithOptions(opts Options) mizu.Middleware {
	header := opts.Header
	if header == "" {
		header = "X-Request-ID"
	}
	gen := opts.Generator
	if gen == nil {
		gen = generateID
	}

	return func(next mizu.Handler) mizu.Handler {
		return func(c *mizu.Ctx) error {
			id := c.Request().Header.Get(header)
			if id == "" {
				id = gen()
			}
			c.Writer().Header().Set(header, id)

			c.SetContext(context.WithValue(c.Context(), ctxKey{}, id))

			return next(c)
		}
	}
}

// FromContext returns the request ID stored on c's context, if any.
func FromContext(c *mizu.Ctx) string {
	if v, ok := c.Context().Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Get is an alias for FromContext.
func Get(c *mizu.Ctx) string {
	return FromContext(c)
}
