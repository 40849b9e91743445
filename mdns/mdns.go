// Package mdns implements mDNS service advertisement and browsing for
// OSCQuery discovery, on top of github.com/grandcat/zeroconf.
package mdns

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/grandcat/zeroconf"
	"golang.org/x/text/unicode/norm"
)

// Service describes a discovered or advertised mDNS service instance.
type Service struct {
	Name     string
	Type     string
	FullType string
	Host     string
	Address  string
	Port     int
	TXT      map[string]string
}

// NormalizeServiceType strips a single leading '_' and a trailing '._tcp'
// from a service-type string, per spec §4.G.
func NormalizeServiceType(s string) string {
	s = strings.TrimPrefix(s, "_")
	s = strings.TrimSuffix(s, "._tcp")
	return s
}

// selectInterfaces enumerates non-loopback IPv4-capable interfaces and
// chooses a primary one per spec §4.G step 2: first address starting with
// "192.168." or "10.", else the first non-loopback IPv4 address, else none.
func selectInterfaces() (all []net.Interface, primary *net.Interface) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}

	var fallback *net.Interface
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip := addrIP(a)
			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			all = append(all, ifaces[i])
			if fallback == nil {
				iface := ifaces[i]
				fallback = &iface
			}
			if primary == nil && (strings.HasPrefix(ip.String(), "192.168.") || strings.HasPrefix(ip.String(), "10.")) {
				iface := ifaces[i]
				primary = &iface
			}
		}
	}
	if primary == nil {
		primary = fallback
	}
	return all, primary
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// Advertise registers instance as an mDNS service of the given normalized
// type (e.g. "oscjson") on port, with TXT records from txt. On every
// platform but Darwin it binds to the primary interface selected per
// selectInterfaces when one is found; on Darwin it never binds a specific
// interface, to avoid conflicting with the system mDNS responder.
func Advertise(instance, normalizedType string, port int, txt map[string]string) (*zeroconf.Server, error) {
	_, primary := selectInterfaces()

	var ifaces []net.Interface
	if primary != nil && runtime.GOOS != "darwin" {
		ifaces = []net.Interface{*primary}
	}

	return zeroconf.Register(instance, "_"+normalizedType+"._tcp", "local.", port, txtRecords(txt), ifaces)
}

func txtRecords(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// Event is an up/down notification from a Browser.
type Event struct {
	Up      bool
	Service Service
}

// Browser watches a set of service types for up/down events, de-duplicating
// by (address, port) per spec §4.G.
type Browser struct {
	types    []string
	protocol string
	onUp     func(Service)
	onDown   func(Service)

	mu   sync.Mutex
	seen map[string]Service
}

// NewBrowser returns a Browser for the given (possibly unnormalized)
// service-type strings, filtering to protocol (default "tcp").
func NewBrowser(types []string, protocol string, onUp, onDown func(Service)) *Browser {
	if protocol == "" {
		protocol = "tcp"
	}
	return &Browser{
		types:    types,
		protocol: protocol,
		onUp:     onUp,
		onDown:   onDown,
		seen:     make(map[string]Service),
	}
}

// Start begins browsing in the background; it returns once every requested
// service type has a browse goroutine running, not once any service has
// actually been discovered.
func (b *Browser) Start(ctx context.Context) error {
	_, primary := selectInterfaces()

	var opts []zeroconf.ClientOption
	if primary != nil && runtime.GOOS != "darwin" {
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*primary}))
	}
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return fmt.Errorf("mdns: new resolver: %w", err)
	}

	for _, t := range b.types {
		normalized := NormalizeServiceType(t)
		entries := make(chan *zeroconf.ServiceEntry)
		go b.consume(normalized, entries)
		serviceType := "_" + normalized + "._" + b.protocol
		if err := resolver.Browse(ctx, serviceType, "local.", entries); err != nil {
			return fmt.Errorf("mdns: browse %s: %w", serviceType, err)
		}
	}
	return nil
}

func (b *Browser) consume(typ string, entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		for _, ip := range entry.AddrIPv4 {
			key := ip.String() + ":" + strconv.Itoa(entry.Port)

			if entry.TTL == 0 {
				b.mu.Lock()
				svc, ok := b.seen[key]
				if ok {
					delete(b.seen, key)
				}
				b.mu.Unlock()
				if ok && b.onDown != nil {
					b.onDown(svc)
				}
				continue
			}

			svc := Service{
				Name:     entry.Instance,
				Type:     typ,
				FullType: typ + "._" + b.protocol + ".local",
				Host:     entry.HostName,
				Address:  ip.String(),
				Port:     entry.Port,
				TXT:      parseTXT(entry.Text),
			}

			b.mu.Lock()
			_, exists := b.seen[key]
			if !exists {
				b.seen[key] = svc
			}
			b.mu.Unlock()

			if !exists && b.onUp != nil {
				b.onUp(svc)
			}
		}
	}
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		if i := strings.IndexByte(r, '='); i >= 0 {
			out[r[:i]] = r[i+1:]
		} else {
			out[r] = ""
		}
	}
	return out
}

const sanitizedSuffixLen = len("_oscjson._tcp")
const sanitizedMaxTotal = 242

// SanitizeServiceName implements spec §6's service-name sanitization rule:
// Unicode NFD decomposition, combining-mark stripping, restriction to
// [A-Za-z0-9-.], per-label dash collapsing and trimming, a random fallback
// when nothing survives, and length capping that reserves 13 bytes (the
// length of "_oscjson._tcp") of the 242-byte total for the type suffix.
func SanitizeServiceName(name string) string {
	decomposed := norm.NFD.String(name)

	var stripped strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		stripped.WriteRune(r)
	}

	var labels []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			labels = append(labels, collapseDashes(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range stripped.String() {
		switch {
		case r == '.':
			flush()
		case r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			cur.WriteRune(r)
		}
	}
	flush()

	var nonEmpty []string
	for _, l := range labels {
		if l == "" {
			continue
		}
		if len(l) > 63 {
			l = l[:63]
		}
		nonEmpty = append(nonEmpty, l)
	}

	joined := strings.Join(nonEmpty, ".")
	if joined == "" {
		joined = "OSCQuery-" + randomSuffix()
	}

	maxName := sanitizedMaxTotal - sanitizedSuffixLen
	if len(joined) > maxName {
		joined = joined[:maxName]
	}
	return strings.TrimRight(joined, "-.")
}

func collapseDashes(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range s {
		if r == '-' {
			if prevDash {
				continue
			}
			prevDash = true
		} else {
			prevDash = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}

func randomSuffix() string {
	const chars = "0123456789abcdef"
	b := make([]byte, 8)
	for i := range b {
		b[i] = chars[rand.IntN(len(chars))]
	}
	return string(b)
}
