// Package oscquery implements the server orchestrator: it wires the method
// tree, HTTP query handler, WebSocket hub, UDP OSC transport, and mDNS
// advertisement into a single service with a defined startup/shutdown
// lifecycle.
package oscquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	mizu "github.com/defektu/node-oscquery"
	"github.com/defektu/node-oscquery/mdns"
	"github.com/defektu/node-oscquery/node"
	"github.com/defektu/node-oscquery/oscudp"
	"github.com/defektu/node-oscquery/oscwire"
	"github.com/defektu/node-oscquery/queryhttp"
	"github.com/defektu/node-oscquery/wshub"
)

// Named error kinds per spec §7.
var (
	ErrTransportUnsupported = errors.New("oscquery: OSC transport unsupported")
	ErrBindFailure          = errors.New("oscquery: failed to bind listener")
)

// Options is OSCQueryServiceOptions from spec §6.
type Options struct {
	HTTPPort         int
	BindAddress      string
	RootDescription  string
	OSCQueryHostName string
	OSCIp            string
	OSCPort          int
	OSCTransport     string // "TCP" or "UDP"
	ServiceName      string
	WSIp             string
	WSPort           int
	Broadcast        bool

	Logger *slog.Logger
}

// Option configures Options.
type Option func(*Options)

func WithHTTPPort(p int) Option            { return func(o *Options) { o.HTTPPort = p } }
func WithBindAddress(a string) Option      { return func(o *Options) { o.BindAddress = a } }
func WithRootDescription(d string) Option  { return func(o *Options) { o.RootDescription = d } }
func WithOSCIp(ip string) Option           { return func(o *Options) { o.OSCIp = ip } }
func WithOSCPort(p int) Option             { return func(o *Options) { o.OSCPort = p } }
func WithOSCTransport(t string) Option     { return func(o *Options) { o.OSCTransport = t } }
func WithServiceName(n string) Option      { return func(o *Options) { o.ServiceName = n } }
func WithWSIp(ip string) Option            { return func(o *Options) { o.WSIp = ip } }
func WithWSPort(p int) Option              { return func(o *Options) { o.WSPort = p } }
func WithBroadcast(b bool) Option          { return func(o *Options) { o.Broadcast = b } }
func WithLogger(l *slog.Logger) Option     { return func(o *Options) { o.Logger = l } }

func defaultOptions() Options {
	return Options{
		RootDescription: "root node",
		OSCTransport:    "UDP",
		ServiceName:     "OSCQuery",
	}
}

// Server is a running (or not-yet-started) OSCQuery service.
type Server struct {
	opts Options
	tree *node.Tree
	hub  *wshub.Hub
	log  *slog.Logger

	router   *mizu.Router
	httpSrv  *http.Server
	httpLn   net.Listener
	wsSrv    *http.Server // non-nil only in standalone (not attached) mode
	attached bool

	udp *oscudp.Listener

	mdnsServer *zeroconf.Server

	httpAddr string
	wsAddr   string
	oscAddr  string
}

// New constructs a Server over tree, applying opts on top of spec-mandated
// defaults.
func New(tree *node.Tree, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		opts: o,
		tree: tree,
		hub:  wshub.New(),
		log:  log,
	}
}

// Tree returns the underlying method tree.
func (s *Server) Tree() *node.Tree { return s.tree }

// Start performs the seven-step startup sequence from spec §4.F, resolving
// once HTTP, WS, OSC (if any), and the mDNS advertisement are all ready.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.opts.BindAddress, s.opts.HTTPPort))
	if err != nil {
		return fmt.Errorf("%w: http: %w", ErrBindFailure, err)
	}
	s.httpLn = ln
	httpPort := ln.Addr().(*net.TCPAddr).Port
	s.opts.HTTPPort = httpPort

	wsPort := s.opts.WSPort
	if wsPort == 0 {
		wsPort = httpPort
	}
	wsIp := s.opts.WSIp
	if wsIp == "" {
		wsIp = s.opts.BindAddress
	}
	s.attached = wsPort == httpPort && wsIp == s.opts.BindAddress
	bindWsIp := wsIp
	wsIp = resolveAdvertisedIP(wsIp)

	s.hub.OnMessage = s.receiveOSCMessage

	r := mizu.NewRouter()
	r.Use(mizu.Logger(mizu.LoggerOptions{Logger: s.log}))
	h := queryhttp.New(s.tree, s.hostInfo)
	h.Mount(r)
	s.router = r

	var handler http.Handler = r
	if s.attached {
		handler = &attachedHandler{router: r, hub: s.hub}
	}
	s.httpSrv = &http.Server{Handler: handler}
	s.httpAddr = ln.Addr().String()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", "error", err)
		}
	}()

	if !s.attached {
		wsLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindWsIp, wsPort))
		if err != nil {
			return fmt.Errorf("%w: ws: %w", ErrBindFailure, err)
		}
		wsPort = wsLn.Addr().(*net.TCPAddr).Port
		s.wsSrv = &http.Server{Handler: s.hub}
		s.wsAddr = wsLn.Addr().String()
		go func() {
			if err := s.wsSrv.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("ws server exited", "error", err)
			}
		}()
	} else {
		s.wsAddr = s.httpAddr
	}
	s.opts.WSPort = wsPort
	s.opts.WSIp = wsIp

	serviceName := mdns.SanitizeServiceName(s.opts.ServiceName)
	mdnsServer, err := mdns.Advertise(serviceName, "oscjson", httpPort, nil)
	if err != nil {
		return fmt.Errorf("%w: mdns: %w", ErrBindFailure, err)
	}
	s.mdnsServer = mdnsServer

	bindOscIp := s.opts.OSCIp
	if bindOscIp == "" {
		bindOscIp = s.opts.BindAddress
	}
	oscPort := s.opts.OSCPort
	if oscPort == 0 {
		oscPort = httpPort
	}
	s.opts.OSCIp = resolveAdvertisedIP(bindOscIp)
	s.opts.OSCPort = oscPort

	switch s.opts.OSCTransport {
	case "UDP", "":
		udp, err := oscudp.Listen(fmt.Sprintf("%s:%d", bindOscIp, oscPort), s.receiveOSCMessage)
		if err != nil {
			return fmt.Errorf("%w: udp: %w", ErrBindFailure, err)
		}
		s.udp = udp
		s.oscAddr = udp.Addr().String()
	case "TCP":
		s.log.Warn("OSC transport TCP requested but not implemented", "error", ErrTransportUnsupported)
	default:
		return fmt.Errorf("%w: %q", ErrTransportUnsupported, s.opts.OSCTransport)
	}

	return nil
}

// attachedHandler routes WebSocket upgrade requests to the hub and
// everything else to the HTTP query router, on a single listener.
type attachedHandler struct {
	router *mizu.Router
	hub    *wshub.Hub
}

func (h *attachedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.hub.ServeHTTP(w, r)
		return
	}
	h.router.ServeHTTP(w, r)
}

// resolveAdvertisedIP returns ip unchanged unless it's empty, in which case
// it falls back to "0.0.0.0" per spec §6's HOST_INFO default
// (bindAddress || "0.0.0.0"): a bind address of "" means "all interfaces",
// which HOST_INFO must never advertise literally.
func resolveAdvertisedIP(ip string) string {
	if ip == "" {
		return "0.0.0.0"
	}
	return ip
}

func (s *Server) hostInfo() queryhttp.HostInfo {
	return queryhttp.HostInfo{
		Name:         s.opts.ServiceName,
		Extensions:   queryhttp.Extensions(true),
		OSCIP:        s.opts.OSCIp,
		OSCPort:      s.opts.OSCPort,
		OSCTransport: s.opts.OSCTransport,
		WSIP:         s.opts.WSIp,
		WSPort:       s.opts.WSPort,
	}
}

// AddMethod adds a method/container at path and broadcasts PATH_CHANGED.
func (s *Server) AddMethod(path string, opts node.NodeOpts) string {
	changed := s.tree.AddMethod(path, opts)
	s.hub.BroadcastPathChanged(changed)
	return changed
}

// RemoveMethod removes the method at path, cascading up through emptied
// ancestors, broadcasting PATH_CHANGED for each pruned path.
func (s *Server) RemoveMethod(path string) []string {
	changed := s.tree.RemoveMethod(path)
	for _, p := range changed {
		s.hub.BroadcastPathChanged(p)
	}
	return changed
}

// SetValue assigns args[index] to the argument at path and broadcasts
// PATH_CHANGED.
func (s *Server) SetValue(path string, index int, value any) error {
	if err := s.tree.SetValue(path, index, value); err != nil {
		return err
	}
	s.hub.BroadcastPathChanged(path)
	return nil
}

// UnsetValue clears the argument at path/index and broadcasts PATH_CHANGED.
func (s *Server) UnsetValue(path string, index int) error {
	if err := s.tree.UnsetValue(path, index); err != nil {
		return err
	}
	s.hub.BroadcastPathChanged(path)
	return nil
}

// BroadcastPathRenamed notifies all WS clients of a rename with no
// subscription filter.
func (s *Server) BroadcastPathRenamed(oldPath, newPath string) {
	s.hub.BroadcastPathRenamed(oldPath, newPath)
}

// receiveOSCMessage implements spec §4.F: drop on unknown path or
// non-writable access; otherwise assign args by index, logging and
// continuing past any per-argument failure, then broadcast PATH_CHANGED
// (and, if configured, re-broadcast the OSC message itself).
func (s *Server) receiveOSCMessage(path string, args []any) {
	n, ok := s.tree.Resolve(path)
	if !ok {
		s.log.Debug("dropping OSC message for unknown path", "path", path)
		return
	}
	access, has := n.Access()
	if !has || access == node.AccessNoValue || access == node.AccessReadOnly {
		return
	}

	for i, a := range args {
		if err := s.tree.SetValue(path, i, a); err != nil {
			s.log.Warn("failed to assign OSC argument", "path", path, "index", i, "error", err)
			continue
		}
	}
	s.hub.BroadcastPathChanged(path)

	if s.opts.Broadcast {
		s.hub.BroadcastOSC(oscwire.Message{Path: path, Args: args})
	}
}

// SendValue updates local value slots best-effort then broadcasts the
// binary OSC message to WS subscribers. It does not go over UDP.
func (s *Server) SendValue(path string, args ...any) {
	for i, a := range args {
		_ = s.tree.SetValue(path, i, a)
	}
	s.hub.BroadcastOSC(oscwire.Message{Path: path, Args: args})
}

// HTTPAddr returns the bound HTTP listener address.
func (s *Server) HTTPAddr() string { return s.httpAddr }

// WSClientCount returns the number of connected WebSocket clients.
func (s *Server) WSClientCount() int { return s.hub.Count() }

// Stop runs the four-way concurrent shutdown from spec §4.F: HTTP, WS
// (including all client sockets), OSC UDP, and the mDNS advertisement.
func (s *Server) Stop(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs <- fmt.Errorf("http shutdown: %w", err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.CloseAll()
		if s.wsSrv != nil {
			if err := s.wsSrv.Shutdown(ctx); err != nil {
				errs <- fmt.Errorf("ws shutdown: %w", err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if s.udp != nil {
			if err := s.udp.Close(); err != nil {
				errs <- fmt.Errorf("udp close: %w", err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if s.mdnsServer != nil {
			s.mdnsServer.Shutdown()
		}
	}()

	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if first == nil {
			first = err
		} else {
			s.log.Error("shutdown error", "error", err)
		}
	}
	return first
}
