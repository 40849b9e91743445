// Package discovery implements an OSCQuery discovery client: it browses
// mDNS for OSCQuery services, fetches and deserializes each one's tree and
// host info over HTTP, and emits up/down/error events as services appear
// and disappear.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/defektu/node-oscquery/mdns"
	"github.com/defektu/node-oscquery/node"
	"github.com/defektu/node-oscquery/osctype"
	"github.com/defektu/node-oscquery/queryhttp"
)

// Named error kinds per spec §7.
var (
	ErrAddressFamilyUnsupported = errors.New("discovery: address family unsupported")
	ErrDiscoveryError           = errors.New("discovery: mdns responder error")
)

const serviceType = "oscjson"

// DiscoveredService is one OSCQuery responder found on the network, with
// its deserialized root tree and host info as of the last successful poll.
type DiscoveredService struct {
	Name     string
	Address  string
	Port     int
	Tree     *node.Tree
	HostInfo queryhttp.HostInfo
}

func (d DiscoveredService) baseURL() string {
	return "http://" + net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// EventKind distinguishes the three event shapes a Client emits.
type EventKind int

const (
	EventUp EventKind = iota
	EventDown
	EventError
)

// Event is one notification from Client.Events.
type Event struct {
	Kind    EventKind
	Service DiscoveredService
	Err     error
}

// Client browses for OSCQuery services and keeps a deserialized snapshot of
// each one reachable over IPv4.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
	events     chan Event

	mu      sync.Mutex
	tracked map[string]DiscoveredService
	browser *mdns.Browser
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to fetch tree and host-info
// payloads from discovered services.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the client's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a Client. Call Start to begin browsing.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        slog.Default(),
		events:     make(chan Event, 32),
		tracked:    make(map[string]DiscoveredService),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the channel on which up/down/error events are delivered.
// It is closed when the browse context is cancelled.
func (c *Client) Events() <-chan Event { return c.events }

// Start begins browsing for OSCQuery services in the background. It
// returns once the mDNS browse is underway; discovery continues until ctx
// is cancelled, at which point Events is closed.
func (c *Client) Start(ctx context.Context) error {
	c.browser = mdns.NewBrowser([]string{serviceType}, "tcp", c.handleUp, c.handleDown)
	if err := c.browser.Start(ctx); err != nil {
		return fmt.Errorf("discovery: %w: %w", ErrDiscoveryError, err)
	}
	go func() {
		<-ctx.Done()
		close(c.events)
	}()
	return nil
}

func (c *Client) handleUp(svc mdns.Service) {
	addr := net.ParseIP(svc.Address)
	if addr == nil || addr.To4() == nil {
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("%s: %w", svc.Address, ErrAddressFamilyUnsupported)})
		return
	}

	ds := DiscoveredService{Name: svc.Name, Address: svc.Address, Port: svc.Port}
	if err := c.update(&ds); err != nil {
		c.emit(Event{Kind: EventError, Err: err})
		return
	}

	key := svc.Address + ":" + strconv.Itoa(svc.Port)
	c.mu.Lock()
	c.tracked[key] = ds
	c.mu.Unlock()

	c.emit(Event{Kind: EventUp, Service: ds})
}

func (c *Client) handleDown(svc mdns.Service) {
	key := svc.Address + ":" + strconv.Itoa(svc.Port)
	c.mu.Lock()
	ds, ok := c.tracked[key]
	delete(c.tracked, key)
	c.mu.Unlock()
	if !ok {
		ds = DiscoveredService{Name: svc.Name, Address: svc.Address, Port: svc.Port}
	}
	c.emit(Event{Kind: EventDown, Service: ds})
}

// update fetches the root tree and host info of ds over HTTP and
// deserializes them into ds.Tree/ds.HostInfo.
func (c *Client) update(ds *DiscoveredService) error {
	var sn node.SerializedNode
	if err := c.getJSON(ds.baseURL()+"/", &sn); err != nil {
		return fmt.Errorf("discovery: fetch tree: %w", err)
	}
	ds.Tree = Deserialize(&sn)

	var hi queryhttp.HostInfo
	if err := c.getJSON(ds.baseURL()+"/?HOST_INFO", &hi); err != nil {
		return fmt.Errorf("discovery: fetch host info: %w", err)
	}
	ds.HostInfo = hi

	return nil
}

func (c *Client) getJSON(url string, v any) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("discovery event dropped, channel full", "kind", ev.Kind)
	}
}

// Deserialize rebuilds a node.Tree from a SerializedNode, inverting the
// server's serialization (§6): TYPE is reparsed into argument descriptors,
// and RANGE[i]/CLIPMODE[i]/VALUE[i] are attached to the i-th argument when
// present.
func Deserialize(root *node.SerializedNode) *node.Tree {
	tree := node.NewTree()
	applyNode(tree, root)
	return tree
}

func applyNode(tree *node.Tree, sn *node.SerializedNode) {
	tree.AddMethod(sn.FullPath, nodeOpts(sn))
	for _, child := range sn.Contents {
		applyNode(tree, child)
	}
}

func nodeOpts(sn *node.SerializedNode) node.NodeOpts {
	opts := node.NodeOpts{
		Description: sn.Description,
		Tags:        sn.Tags,
		Critical:    sn.Critical,
	}
	if sn.Access != nil {
		a := node.Access(*sn.Access)
		opts.Access = &a
	}
	if sn.Type != "" {
		opts.Arguments = argumentsFromSerialized(sn)
	}
	return opts
}

func argumentsFromSerialized(sn *node.SerializedNode) []*node.ArgumentDescriptor {
	types := osctype.Parse(sn.Type)
	args := make([]*node.ArgumentDescriptor, len(types))
	for i, t := range types {
		a := &node.ArgumentDescriptor{Type: t}
		if i < len(sn.Range) && sn.Range[i] != nil {
			a.Range = rangeFromEntry(sn.Range[i])
		}
		if i < len(sn.ClipMode) && sn.ClipMode[i] != nil {
			a.ClipMode = node.ClipMode(*sn.ClipMode[i])
		}
		if i < len(sn.Value) && sn.Value[i] != nil {
			a.Value = sn.Value[i]
			a.ValueSet = true
		}
		args[i] = a
	}
	return args
}

func rangeFromEntry(e *node.RangeEntry) *node.Range {
	if e.Nested != nil {
		nested := make([]*node.Range, len(e.Nested))
		for i, n := range e.Nested {
			if n != nil {
				nested[i] = rangeFromEntry(n)
			}
		}
		return &node.Range{Nested: nested}
	}
	return &node.Range{Min: e.Min, Max: e.Max, Vals: e.Vals}
}
