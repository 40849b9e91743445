// File: context.go
package mizu

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// Ctx wraps a single request/response pair with convenience helpers.
type Ctx struct {
	w   http.ResponseWriter
	req *http.Request
	log *slog.Logger
	rc  *http.ResponseController

	statusSet    bool
	status       int
	headerLocked bool
}

func newCtx(w http.ResponseWriter, req *http.Request, log *slog.Logger) *Ctx {
	if log == nil {
		log = slog.Default()
	}
	return &Ctx{
		w:      w,
		req:    req,
		log:    log,
		rc:     http.NewResponseController(w),
		status: http.StatusOK,
	}
}

// Request returns the underlying *http.Request.
func (c *Ctx) Request() *http.Request { return c.req }

// Writer returns the underlying http.ResponseWriter.
func (c *Ctx) Writer() http.ResponseWriter { return c.w }

// Response is an alias for Writer, matching net/http naming in some call sites.
func (c *Ctx) Response() http.ResponseWriter { return c.w }

// Header returns the response header map.
func (c *Ctx) Header() http.Header { return c.w.Header() }

// Context returns the request's context.
func (c *Ctx) Context() context.Context { return c.req.Context() }

// SetContext replaces the request's context, as returned by Context and
// Request().Context(). Used by middleware that stashes per-request values.
func (c *Ctx) SetContext(ctx context.Context) {
	c.req = c.req.WithContext(ctx)
}

// Logger returns the request-scoped logger.
func (c *Ctx) Logger() *slog.Logger { return c.log }

// StatusCode returns the status code that will be (or was) written.
func (c *Ctx) StatusCode() int { return c.status }

// Status sets the status code to be used by the next Write/WriteString/File
// call that doesn't specify its own code. It is a no-op once the header has
// already been written.
func (c *Ctx) Status(code int) *Ctx {
	if !c.headerLocked {
		c.status = code
		c.statusSet = true
	}
	return c
}

func (c *Ctx) lockHeader(code int) {
	if c.headerLocked {
		return
	}
	c.headerLocked = true
	c.status = code
	c.w.WriteHeader(code)
}

// Param returns a path parameter extracted by the router (via http.ServeMux
// pattern routing).
func (c *Ctx) Param(name string) string { return c.req.PathValue(name) }

// Query returns the first value of a query parameter.
func (c *Ctx) Query(name string) string {
	if c.req.URL == nil {
		return ""
	}
	return c.req.URL.Query().Get(name)
}

// QueryValues returns all query parameters.
func (c *Ctx) QueryValues() url.Values {
	if c.req.URL == nil {
		return url.Values{}
	}
	return c.req.URL.Query()
}

// Form parses and returns the request's form values (query + urlencoded body).
func (c *Ctx) Form() (url.Values, error) {
	if err := c.req.ParseForm(); err != nil {
		return nil, err
	}
	return c.req.Form, nil
}

// MultipartForm parses a multipart form with the given memory limit. The
// returned cleanup function removes any temporary files created during
// parsing and must be called when the caller is done with the form.
func (c *Ctx) MultipartForm(maxMemory int64) (*multipart.Form, func(), error) {
	if err := c.req.ParseMultipartForm(maxMemory); err != nil {
		return nil, func() {}, err
	}
	form := c.req.MultipartForm
	cleanup := func() {
		if form != nil {
			_ = form.RemoveAll()
		}
	}
	return form, cleanup, nil
}

// Cookie returns a named request cookie.
func (c *Ctx) Cookie(name string) (*http.Cookie, error) {
	return c.req.Cookie(name)
}

// SetCookie adds a Set-Cookie header to the response.
func (c *Ctx) SetCookie(cookie *http.Cookie) {
	http.SetCookie(c.w, cookie)
}

// Bind decodes the request body as JSON into v, rejecting unknown fields and
// trailing data. maxBytes, if positive, caps the body size read.
func (c *Ctx) Bind(v any, maxBytes int64) error {
	var r io.Reader = c.req.Body
	if maxBytes > 0 {
		r = io.LimitReader(c.req.Body, maxBytes+1)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if lr, ok := r.(*io.LimitedReader); ok && lr.N <= 0 {
		return fmt.Errorf("request body exceeds %d bytes", maxBytes)
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return errors.New("request body contains trailing data")
		}
	}
	return nil
}

// NoContent writes a 204 response with no body.
func (c *Ctx) NoContent() error {
	c.lockHeader(http.StatusNoContent)
	return nil
}

// Redirect writes an HTTP redirect. A zero code defaults to 302 Found.
func (c *Ctx) Redirect(code int, location string) error {
	if code == 0 {
		code = http.StatusFound
	}
	c.w.Header().Set("Location", location)
	c.lockHeader(code)
	return nil
}

func (c *Ctx) setContentTypeIfAbsent(ct string) {
	if c.w.Header().Get("Content-Type") == "" {
		c.w.Header().Set("Content-Type", ct)
	}
}

// JSON writes v as a JSON response body with the given status code.
func (c *Ctx) JSON(code int, v any) error {
	c.setContentTypeIfAbsent("application/json; charset=utf-8")
	c.lockHeader(code)
	return json.NewEncoder(c.w).Encode(v)
}

// HTML writes an HTML response body with the given status code.
func (c *Ctx) HTML(code int, body string) error {
	c.setContentTypeIfAbsent("text/html; charset=utf-8")
	c.lockHeader(code)
	_, err := io.WriteString(c.w, body)
	return err
}

// Text writes a plain-text response body. Invalid UTF-8 degrades the
// content type to application/octet-stream.
func (c *Ctx) Text(code int, body string) error {
	if utf8.ValidString(body) {
		c.setContentTypeIfAbsent("text/plain; charset=utf-8")
	} else {
		c.setContentTypeIfAbsent("application/octet-stream")
	}
	c.lockHeader(code)
	_, err := io.WriteString(c.w, body)
	return err
}

// Bytes writes a raw byte response body with the given content type. An
// empty contentType defaults to application/octet-stream.
func (c *Ctx) Bytes(code int, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.setContentTypeIfAbsent(contentType)
	c.lockHeader(code)
	_, err := c.w.Write(data)
	return err
}

// Write implements io.Writer, honoring the status code set via Status.
func (c *Ctx) Write(p []byte) (int, error) {
	c.lockHeader(c.status)
	return c.w.Write(p)
}

// WriteString writes a string body, honoring the status code set via Status.
func (c *Ctx) WriteString(s string) (int, error) {
	c.lockHeader(c.status)
	return io.WriteString(c.w, s)
}

// File writes the contents of path as the response body. A zero code uses
// the status previously set via Status; a non-zero code overrides it.
func (c *Ctx) File(code int, path string) error {
	if code == 0 {
		code = c.status
	}
	c.status = code
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	c.lockHeader(code)
	http.ServeContent(c.w, c.req, filepath.Base(path), stat.ModTime(), f)
	return nil
}

// Download writes the contents of path as an attachment named filename.
func (c *Ctx) Download(code int, path, filename string) error {
	c.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.File(code, path)
}

// Stream calls fn with the response writer, returning any error fn produces.
// A Content-Type of application/octet-stream is set when none is present.
func (c *Ctx) Stream(fn func(w io.Writer) error) error {
	c.setContentTypeIfAbsent("application/octet-stream")
	c.lockHeader(c.status)
	return fn(c.w)
}

// SSE streams each value received from ch as a server-sent event, writing a
// final "event: end" when ch closes. When the request context is canceled it
// returns without writing that event.
func (c *Ctx) SSE(ch <-chan any) error {
	if _, ok := c.w.(http.Flusher); !ok {
		return errors.New("mizu: SSE requires a ResponseWriter that supports flushing")
	}

	c.setContentTypeIfAbsent("text/event-stream")
	c.w.Header().Set("Cache-Control", "no-cache")
	c.w.Header().Set("Connection", "keep-alive")
	c.lockHeader(c.status)

	for {
		select {
		case <-c.req.Context().Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				_, _ = io.WriteString(c.w, "event: end\n\n")
				c.Flush()
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
				return err
			}
			c.Flush()
		}
	}
}

// Flush flushes buffered data to the client, if the underlying writer
// supports it. It never panics.
func (c *Ctx) Flush() {
	_ = c.rc.Flush()
}

// SetWriter replaces the response writer, rebuilding the internal
// ResponseController. Used by middleware that wraps the writer.
func (c *Ctx) SetWriter(w http.ResponseWriter) {
	c.w = w
	c.rc = http.NewResponseController(w)
}

// SetWriteDeadline sets the connection's write deadline, if supported.
func (c *Ctx) SetWriteDeadline(t time.Time) error {
	return c.rc.SetWriteDeadline(t)
}

// EnableFullDuplex enables full-duplex HTTP/1 request handling, if supported.
func (c *Ctx) EnableFullDuplex() error {
	return c.rc.EnableFullDuplex()
}

// Hijack takes over the connection, if the underlying writer supports it.
func (c *Ctx) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return c.rc.Hijack()
}
