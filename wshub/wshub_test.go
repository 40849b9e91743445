package wshub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) Command {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return cmd
}

func waitForCount(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count() never reached %d, stuck at %d", n, h.Count())
}

func TestSubscriptionDefaultsToEverything(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForCount(t, h, 1)

	h.BroadcastPathChanged("/anything")
	cmd := readCommand(t, conn)
	if cmd.Command != "PATH_CHANGED" || cmd.Data != "/anything" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestPrefixSubscriptionFiltersCorrectly(t *testing.T) {
	// spec §8 scenario 4
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()
	waitForCount(t, h, 2)

	a.WriteJSON(Command{Command: "LISTEN", Data: "/a"})
	b.WriteJSON(Command{Command: "LISTEN", Data: "/b"})
	time.Sleep(50 * time.Millisecond) // let both LISTEN commands land

	h.BroadcastPathChanged("/a/x/y")

	cmd := readCommand(t, a)
	if cmd.Data != "/a/x/y" {
		t.Fatalf("A got %+v, want /a/x/y", cmd)
	}

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Fatal("B should not have received a notification for /a/x/y")
	}
}

func TestIgnoreRemovesSubscription(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForCount(t, h, 1)

	conn.WriteJSON(Command{Command: "LISTEN", Data: "/a"})
	time.Sleep(30 * time.Millisecond)
	conn.WriteJSON(Command{Command: "IGNORE", Data: "/a"})
	time.Sleep(30 * time.Millisecond)

	// subscription set is empty again -> receives everything
	h.BroadcastPathChanged("/z")
	cmd := readCommand(t, conn)
	if cmd.Data != "/z" {
		t.Fatalf("got %+v, want /z", cmd)
	}
}

func TestPathRenamedIgnoresSubscriptions(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForCount(t, h, 1)

	conn.WriteJSON(Command{Command: "LISTEN", Data: "/unrelated"})
	time.Sleep(30 * time.Millisecond)

	h.BroadcastPathRenamed("/old", "/new")
	cmd := readCommand(t, conn)
	if cmd.Command != "PATH_RENAMED" {
		t.Fatalf("command = %q, want PATH_RENAMED", cmd.Command)
	}
	payload, ok := cmd.Data.(map[string]any)
	if !ok || payload["OLD"] != "/old" || payload["NEW"] != "/new" {
		t.Fatalf("data = %+v", cmd.Data)
	}
}

func TestBroadcastDeregistersFailedClient(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitForCount(t, h, 1)
	conn.Close() // force the next send on this client to fail

	// the server's read loop may also notice the close and deregister the
	// client; either way the hub must end up with no clients
	h.BroadcastPathChanged("/x")
	waitForCount(t, h, 0)
}

func TestBinaryOSCFrameInvokesOnMessage(t *testing.T) {
	h := New()
	received := make(chan struct {
		path string
		args []any
	}, 1)
	h.OnMessage = func(path string, args []any) {
		received <- struct {
			path string
			args []any
		}{path, args}
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForCount(t, h, 1)

	conn.WriteMessage(websocket.BinaryMessage, []byte("/foo\x00\x00\x00\x00,\x00\x00\x00"))

	select {
	case got := <-received:
		if got.path != "/foo" {
			t.Fatalf("path = %q, want /foo", got.path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnMessage was never invoked")
	}
}
