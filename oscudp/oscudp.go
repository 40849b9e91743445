// Package oscudp implements the UDP OSC transport listener used by the
// server orchestrator: one decoded message per datagram, no bundle support.
package oscudp

import (
	"errors"
	"fmt"
	"net"

	"github.com/defektu/node-oscquery/oscwire"
)

// Listener receives OSC messages over UDP and dispatches each decoded
// message to Handle.
type Listener struct {
	conn   net.PacketConn
	Handle func(path string, args []any)
}

// Listen binds a UDP listener at addr. Handle is invoked for every datagram
// that decodes to at least an address; decode failures are dropped
// silently (the caller may wire its own logging into Handle's absence by
// checking the returned error from a failed Decode elsewhere — this
// listener has no logger of its own).
func Listen(addr string, handle func(path string, args []any)) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("oscudp: listen %s: %w", addr, err)
	}
	l := &Listener{conn: conn, Handle: handle}
	go l.serve()
	return l, nil
}

func (l *Listener) serve() {
	buf := make([]byte, 65535)
	for {
		n, _, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		msg, err := oscwire.Decode(buf[:n])
		if err != nil {
			continue
		}
		if l.Handle != nil {
			l.Handle(msg.Path, msg.Args)
		}
	}
}

// Addr returns the listener's bound local address.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Close stops the listener.
func (l *Listener) Close() error { return l.conn.Close() }
