// File: router.go
package mizu

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// Handler is a mizu request handler.
type Handler func(c *Ctx) error

// Middleware wraps a Handler to produce another Handler.
type Middleware func(Handler) Handler

// ErrorHandlerFunc handles an error returned by a Handler or recovered from a panic.
type ErrorHandlerFunc func(c *Ctx, err error)

// PanicError wraps a recovered panic value together with a captured stack trace.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Router is a thin wrapper around http.ServeMux adding middleware chaining,
// path prefixes, and a Compat bridge for raw net/http handlers.
type Router struct {
	mux    *http.ServeMux
	base   string
	mws    []Middleware
	errh   ErrorHandlerFunc
	log    *slog.Logger
	Compat *httpRouter
}

// RouterOption configures a Router at construction time.
type RouterOption func(*Router)

// NewRouter creates a Router with a fresh ServeMux and default logger.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		mux: http.NewServeMux(),
		log: slog.Default(),
	}
	r.Compat = &httpRouter{r: r}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Logger returns the router's logger.
func (r *Router) Logger() *slog.Logger { return r.log }

// SetLogger sets the router's logger. A nil logger is a no-op.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.log = l
	}
}

// ErrorHandler installs a custom handler for errors returned by handlers or
// recovered from panics. The default writes a 500 with the status text.
func (r *Router) ErrorHandler(h ErrorHandlerFunc) { r.errh = h }

// Use appends global middleware, applied to routes registered on r after
// this call (and on descendants created afterwards via Prefix/With/Group),
// and to requests served by r that match no route.
func (r *Router) Use(mws ...Middleware) {
	r.mws = append(r.mws, mws...)
}

// With returns a new Router sharing the same mux and base path, scoped with
// additional middleware that applies only to routes registered through it.
func (r *Router) With(mws ...Middleware) *Router {
	cp := &Router{
		mux:    r.mux,
		base:   r.base,
		mws:    append(append([]Middleware{}, r.mws...), mws...),
		errh:   r.errh,
		log:    r.log,
		Compat: r.Compat,
	}
	return cp
}

// Prefix returns a new Router scoped under the given path prefix, sharing
// the same mux and middleware chain collected so far.
func (r *Router) Prefix(prefix string) *Router {
	cp := &Router{
		mux:    r.mux,
		base:   joinPath(r.base, prefix),
		mws:    append([]Middleware{}, r.mws...),
		errh:   r.errh,
		log:    r.log,
		Compat: r.Compat,
	}
	return cp
}

func cleanLeading(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if p == "" || p == "/" {
		if base == "" {
			return "/"
		}
		return base
	}
	p = cleanLeading(p)
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	if base == "" {
		return p
	}
	return base + p
}

func (r *Router) fullPath(p string) string {
	return joinPath(r.base, p)
}

func (r *Router) chain(h Handler) Handler {
	for i := len(r.mws) - 1; i >= 0; i-- {
		h = r.mws[i](h)
	}
	return h
}

// Handle registers h for method and path, scoped to the router's prefix and
// middleware chain.
func (r *Router) Handle(method, path string, h Handler) {
	final := r.chain(h)
	pattern := method + " " + r.fullPath(path)
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		r.serve(w, req, final)
	})
}

// Get registers a GET handler.
func (r *Router) Get(path string, h Handler) { r.Handle(http.MethodGet, path, h) }

// Post registers a POST handler.
func (r *Router) Post(path string, h Handler) { r.Handle(http.MethodPost, path, h) }

// Put registers a PUT handler.
func (r *Router) Put(path string, h Handler) { r.Handle(http.MethodPut, path, h) }

// Patch registers a PATCH handler.
func (r *Router) Patch(path string, h Handler) { r.Handle(http.MethodPatch, path, h) }

// Delete registers a DELETE handler.
func (r *Router) Delete(path string, h Handler) { r.Handle(http.MethodDelete, path, h) }

// Head registers a HEAD handler.
func (r *Router) Head(path string, h Handler) { r.Handle(http.MethodHead, path, h) }

// Options registers an OPTIONS handler.
func (r *Router) Options(path string, h Handler) { r.Handle(http.MethodOptions, path, h) }

// Group calls fn with a Router scoped under prefix, for mizu-native nesting.
func (r *Router) Group(prefix string, fn func(*Router)) {
	fn(r.Prefix(prefix))
}

// Static serves the contents of fsys rooted at prefix, redirecting the bare
// prefix (without trailing slash) to prefix+"/".
func (r *Router) Static(prefix string, fsys http.FileSystem) {
	full := r.fullPath(prefix)
	trimmed := strings.TrimSuffix(full, "/")
	fileServer := http.FileServer(fsys)

	var stripped http.Handler
	if trimmed == "" {
		stripped = fileServer
	} else {
		stripped = http.StripPrefix(trimmed, fileServer)
	}

	serveFile := func(c *Ctx) error {
		stripped.ServeHTTP(c.Writer(), c.Request())
		return nil
	}

	if trimmed != "" {
		r.Handle(http.MethodGet, trimmed, func(c *Ctx) error {
			c.Redirect(http.StatusMovedPermanently, trimmed+"/")
			return nil
		})
	}

	pattern := trimmed + "/"
	if pattern == "" {
		pattern = "/"
	}
	final := r.chain(serveFile)
	muxPattern := "GET " + pattern + "{path...}"
	if pattern == "/" {
		muxPattern = "GET /"
	}
	r.mux.HandleFunc(muxPattern, func(w http.ResponseWriter, req *http.Request) {
		r.serve(w, req, final)
	})
	headPattern := "HEAD " + pattern + "{path...}"
	if pattern == "/" {
		headPattern = "HEAD /"
	}
	r.mux.HandleFunc(headPattern, func(w http.ResponseWriter, req *http.Request) {
		r.serve(w, req, final)
	})
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request, h Handler) {
	c := newCtx(w, req, r.log)

	defer func() {
		if rec := recover(); rec != nil {
			pe := &PanicError{Value: rec, Stack: debug.Stack()}
			r.handleError(c, pe)
		}
	}()

	if err := h(c); err != nil {
		r.handleError(c, err)
	}
}

func (r *Router) handleError(c *Ctx, err error) {
	if r.errh != nil {
		r.errh(c, err)
		return
	}
	c.Writer().WriteHeader(http.StatusInternalServerError)
	_, _ = c.Writer().Write([]byte(http.StatusText(http.StatusInternalServerError)))
}

// ServeHTTP implements http.Handler. A request that matches no route still
// passes through the global middleware before the mux answers it (404 or
// 405), so middleware such as CORS can answer a preflight on its own.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if _, pattern := r.mux.Handler(req); pattern == "" && len(r.mws) > 0 {
		r.serve(w, req, r.chain(func(c *Ctx) error {
			r.mux.ServeHTTP(c.Writer(), c.Request())
			return nil
		}))
		return
	}
	r.mux.ServeHTTP(w, req)
}

// httpRouter is the Compat bridge for registering raw net/http handlers and
// middleware alongside mizu-native routes.
type httpRouter struct {
	r      *Router
	stdMws []func(http.Handler) http.Handler
}

// Use appends standard net/http middleware, applied to every route
// registered through Compat (Handle/HandleMethod/Mount) from this point on,
// and to mizu-native routes registered on the same Router afterward.
func (h *httpRouter) Use(mws ...func(http.Handler) http.Handler) {
	h.stdMws = append(h.stdMws, mws...)
	r := h.r
	r.Use(func(next Handler) Handler {
		return func(c *Ctx) error {
			var called bool
			var herr error
			inner := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				called = true
				c.SetWriter(w)
				herr = next(c)
			})
			wrapped := http.Handler(inner)
			for i := len(mws) - 1; i >= 0; i-- {
				wrapped = mws[i](wrapped)
			}
			wrapped.ServeHTTP(c.Writer(), c.Request())
			if !called {
				return nil
			}
			return herr
		}
	})
}

func (h *httpRouter) wrap(handler http.Handler) Handler {
	return func(c *Ctx) error {
		handler.ServeHTTP(c.Writer(), c.Request())
		return nil
	}
}

// Handle registers a raw net/http.Handler for all methods at path.
func (h *httpRouter) Handle(path string, handler http.Handler) {
	full := h.r.fullPath(path)
	final := h.r.chain(h.wrap(handler))
	h.r.mux.HandleFunc(full, func(w http.ResponseWriter, req *http.Request) {
		h.r.serve(w, req, final)
	})
}

// HandleMethod registers a raw net/http.Handler for a single method at path.
func (h *httpRouter) HandleMethod(method, path string, handler http.Handler) {
	h.r.Handle(method, path, h.wrap(handler))
}

// Mount registers a raw net/http.Handler at path, for all methods, without
// consuming path segments (compat alias for Handle).
func (h *httpRouter) Mount(path string, handler http.Handler) {
	h.Handle(path, handler)
}

// Group calls fn with a new httpRouter scoped under prefix.
func (h *httpRouter) Group(prefix string, fn func(*httpRouter)) {
	sub := &httpRouter{r: h.r.Prefix(prefix), stdMws: append([]func(http.Handler) http.Handler{}, h.stdMws...)}
	fn(sub)
}
