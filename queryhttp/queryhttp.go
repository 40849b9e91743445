// Package queryhttp implements the OSCQuery HTTP surface: GET /<path>[?ATTR]
// resolution against a method tree, HOST_INFO, and CORS preflight.
package queryhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mizu "github.com/defektu/node-oscquery"
	"github.com/defektu/node-oscquery/middlewares/cors"
	"github.com/defektu/node-oscquery/node"
)

// Named error kinds per spec §7, used for structured logging at the point
// of rejection even though the HTTP response body stays a plain JSON
// error object (query clients don't parse Go error types).
var (
	ErrInvalidAttribute = errors.New("queryhttp: invalid attribute")
	ErrUnknownPath      = errors.New("queryhttp: unknown path")
)

// HostInfo is the wire form of the server's transport and extension
// metadata, returned by GET /?HOST_INFO.
type HostInfo struct {
	Name         string          `json:"NAME"`
	Extensions   map[string]bool `json:"EXTENSIONS"`
	OSCIP        string          `json:"OSC_IP"`
	OSCPort      int             `json:"OSC_PORT"`
	OSCTransport string          `json:"OSC_TRANSPORT"`
	WSIP         string          `json:"WS_IP"`
	WSPort       int             `json:"WS_PORT"`
}

// Extensions builds the EXTENSIONS set: the static attribute extensions are
// always advertised; LISTEN and PATH_CHANGED are advertised only while the
// WebSocket hub is running.
func Extensions(wsRunning bool) map[string]bool {
	ext := map[string]bool{
		"ACCESS":      true,
		"VALUE":       true,
		"RANGE":       true,
		"DESCRIPTION": true,
		"TAGS":        true,
		"CRITICAL":    true,
		"CLIPMODE":    true,
	}
	if wsRunning {
		ext["LISTEN"] = true
		ext["PATH_CHANGED"] = true
	}
	return ext
}

var allowedAttrs = map[string]bool{
	"FULL_PATH":   true,
	"CONTENTS":    true,
	"TYPE":        true,
	"ACCESS":      true,
	"RANGE":       true,
	"DESCRIPTION": true,
	"TAGS":        true,
	"CRITICAL":    true,
	"CLIPMODE":    true,
	"VALUE":       true,
	"HOST_INFO":   true,
}

// Handler serves the OSCQuery query protocol against Tree, reporting
// HostInfo for ?HOST_INFO requests.
type Handler struct {
	Tree     *node.Tree
	HostInfo func() HostInfo
}

// New returns a Handler for tree, using hostInfo to answer ?HOST_INFO.
func New(tree *node.Tree, hostInfo func() HostInfo) *Handler {
	return &Handler{Tree: tree, HostInfo: hostInfo}
}

// Mount registers the handler on r under a CORS preflight matching the
// protocol's fixed policy (any origin, GET+OPTIONS, Content-Type, 1 day
// max-age). Any other HTTP method on the query path is answered with 400.
func (h *Handler) Mount(r *mizu.Router) {
	scoped := r.With(cors.New(cors.Options{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       86400 * time.Second,
	}))
	scoped.Get("/{path...}", h.handleGet)
	scoped.Options("/{path...}", h.handleOptions)
	// http.ServeMux prefers the method-specific patterns above, so only
	// other methods reach this one.
	r.Compat.Handle("/{path...}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"method not allowed"}`))
	}))
}

// handleOptions only runs when the CORS middleware saw no Origin header (it
// answers the preflight itself otherwise); it still returns a bare 204.
func (h *Handler) handleOptions(c *mizu.Ctx) error {
	hdr := c.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type")
	hdr.Set("Access-Control-Max-Age", "86400")
	return c.NoContent()
}

func attrFromQuery(rawQuery string) string {
	if i := strings.IndexAny(rawQuery, "=&"); i >= 0 {
		return rawQuery[:i]
	}
	return rawQuery
}

func (h *Handler) handleGet(c *mizu.Ctx) error {
	attr := attrFromQuery(c.Request().URL.RawQuery)
	if attr != "" && !allowedAttrs[attr] {
		slog.Default().Warn("rejected query", "attr", attr, "error", ErrInvalidAttribute)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid attribute"})
	}

	if attr == "HOST_INFO" {
		return c.JSON(http.StatusOK, h.HostInfo())
	}

	path := "/" + c.Param("path")
	n, ok := h.Tree.Resolve(path)
	if !ok {
		slog.Default().Debug("path not found", "path", path, "error", ErrUnknownPath)
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}

	if attr == "VALUE" {
		if access, _ := n.Access(); access == node.AccessNoValue || access == node.AccessWriteOnly {
			return c.NoContent()
		}
	}

	s, _ := h.Tree.Serialize(path)
	if attr == "" {
		return c.JSON(http.StatusOK, s)
	}
	return c.JSON(http.StatusOK, map[string]any{attr: attrValue(s, attr)})
}

func attrValue(s *node.SerializedNode, attr string) any {
	switch attr {
	case "FULL_PATH":
		return s.FullPath
	case "CONTENTS":
		return s.Contents
	case "TYPE":
		return s.Type
	case "ACCESS":
		return s.Access
	case "RANGE":
		return s.Range
	case "DESCRIPTION":
		return s.Description
	case "TAGS":
		return s.Tags
	case "CRITICAL":
		return s.Critical
	case "CLIPMODE":
		return s.ClipMode
	case "VALUE":
		return s.Value
	default:
		return nil
	}
}
