package relay

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	srv := NewServer(Config{CasterAddr: "127.0.0.1:0", WatcherAddr: "127.0.0.1:0"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	return srv, cancel
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return conn
}

func waitForStats(t *testing.T, srv *Server, want func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		st, err := srv.Stats(ctx)
		cancel()
		if err == nil && want(st) {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stats never satisfied condition")
	return Stats{}
}

func TestCasterRegisterAndLogin(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	defer c.Close()

	if _, err := c.Write([]byte("hello alice s3cret\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitForStats(t, srv, func(st Stats) bool { return st.Casters == 1 })
}

func TestCasterHandshakeSplitAcrossWrites(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	defer c.Close()

	c.Write([]byte("hel"))
	time.Sleep(20 * time.Millisecond)
	c.Write([]byte("lo bob\r\n"))

	waitForStats(t, srv, func(st Stats) bool { return st.Casters == 1 })
}

func TestCasterOversizePreAuthDisconnects(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	defer c.Close()

	// No newline ever arrives: more than preAuthCap bytes of junk should get
	// the caster disconnected.
	c.Write(make([]byte, preAuthCap+1))

	buf := make([]byte, 1)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.Read(buf)
	if err == nil {
		t.Fatalf("expected connection to be closed by server")
	}
}

func TestCasterOversizeSingleReadWithTerminatorDisconnects(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	defer c.Close()

	// One write with both a complete terminator and an oversize line: must
	// still be rejected as oversize, not accepted as a valid handshake.
	name := make([]byte, preAuthCap)
	for i := range name {
		name[i] = 'a'
	}
	line := append([]byte("hello "), name...)
	line = append(line, '\n')
	c.Write(line)

	buf := make([]byte, 1)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.Read(buf)
	if err == nil {
		t.Fatalf("expected connection to be closed by server")
	}
}

func TestWatcherMenuOnConnect(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	w := dial(t, srv.watcherListener.Addr())
	defer w.Close()

	w.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := w.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n == 0 {
		t.Fatalf("no bytes received on connect")
	}
}

// TestAttachWatcherResolvesAgainstLastRenderedMenu guards against resolving
// an 'a'..'p' keypress by recomputing a fresh map-ordered snapshot, which
// could silently pick a different caster than the one the watcher actually
// saw printed at that slot (Go randomizes map iteration order per range).
// It sets w.menuHandles directly to an ordering that need not match
// whatever order a fresh scan of s.casters would produce, then asserts
// attachWatcher honors the stored ordering.
func TestAttachWatcherResolvesAgainstLastRenderedMenu(t *testing.T) {
	srv := NewServer(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Now()
	alice := newCasterSession(10, nil, now)
	alice.name = "alice"
	bob := newCasterSession(11, nil, now)
	bob.name = "bob"
	srv.casters[alice.handle] = alice
	srv.casters[bob.handle] = bob

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := clientConn.Read(buf); err != nil {
				return
			}
		}
	}()

	w := newWatcherSession(20, serverConn)
	w.state = stateMainMenu
	// Deliberately the reverse of insertion order, so this only passes if
	// attachWatcher actually consults menuHandles rather than a fresh scan.
	w.menuHandles = []Handle{bob.handle, alice.handle}

	srv.attachWatcher(w, 0)

	if w.watching != bob.handle {
		t.Fatalf("watching = %d, want bob's handle %d (menuHandles[0])", w.watching, bob.handle)
	}
	if _, subscribed := bob.subscribers[w.handle]; !subscribed {
		t.Errorf("watcher not added to bob's subscriber set")
	}
}

func TestWatcherAttachAndDetach(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	defer c.Close()
	c.Write([]byte("hello alice\r\n"))
	waitForStats(t, srv, func(st Stats) bool { return st.Casters == 1 })

	c.Write([]byte("hello from the stream\n"))

	w := dial(t, srv.watcherListener.Addr())
	defer w.Close()
	r := bufio.NewReader(w)
	w.SetReadDeadline(time.Now().Add(2 * time.Second))
	// Drain the initial menu (telnet negotiation + rendered page).
	time.Sleep(50 * time.Millisecond)
	drainAvailable(t, r)

	if _, err := w.Write([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForStats(t, srv, func(st Stats) bool { return st.SubscriberEdges == 1 })

	if _, err := w.Write([]byte("q")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForStats(t, srv, func(st Stats) bool { return st.SubscriberEdges == 0 })
}

func TestCasterDisconnectResetsWatchers(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()

	c := dial(t, srv.casterListener.Addr())
	c.Write([]byte("hello alice\r\n"))
	waitForStats(t, srv, func(st Stats) bool { return st.Casters == 1 })

	w := dial(t, srv.watcherListener.Addr())
	defer w.Close()
	r := bufio.NewReader(w)
	w.SetReadDeadline(time.Now().Add(2 * time.Second))
	time.Sleep(50 * time.Millisecond)
	drainAvailable(t, r)

	w.Write([]byte("a"))
	waitForStats(t, srv, func(st Stats) bool { return st.SubscriberEdges == 1 })

	c.Close()
	waitForStats(t, srv, func(st Stats) bool { return st.Casters == 0 && st.SubscriberEdges == 0 })
}

func drainAvailable(t *testing.T, r *bufio.Reader) {
	t.Helper()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n == 0 || err != nil {
			return
		}
		if r.Buffered() == 0 {
			return
		}
	}
}
