package relay

import (
	"bytes"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/caststream/termcastd/internal/menu"
	"github.com/caststream/termcastd/internal/ring"
)

// casterHistoryCapacity is the scrollback RingBuffer capacity (spec.md §3).
const casterHistoryCapacity = 90_000

// preAuthCap is the absolute cap on pre-authentication handshake bytes
// (spec.md §3/§4.3). It is enforced independently of the RingBuffer's own
// capacity, which is sized for post-auth scrollback, not the handshake.
const preAuthCap = 1024

// casterSession is the per-caster state described in spec.md §3/§4.3.
type casterSession struct {
	handle Handle
	conn   net.Conn

	name string // "" until the handshake completes

	history    *ring.Buffer
	preAuthLen int

	// pending is true while a password hash is being computed on a worker;
	// the caster is parked here (the "HandshakePending" micro-state from
	// spec.md §9) until the worker reports back on the control channel.
	pending      bool
	pendingName  string
	pendingExtra []byte // bytes already observed that belong after the handshake line

	subscribers map[Handle]struct{}

	connectedAt time.Time
	lastByteAt  time.Time
}

func newCasterSession(h Handle, conn net.Conn, now time.Time) *casterSession {
	return &casterSession{
		handle:      h,
		conn:        conn,
		history:     ring.New(casterHistoryCapacity),
		subscribers: make(map[Handle]struct{}),
		connectedAt: now,
		lastByteAt:  now,
	}
}

func (c *casterSession) authenticated() bool { return c.name != "" }

// appendPreAuth accumulates raw bytes ahead of handshake completion,
// enforcing the 1024-byte absolute cap independently of the RingBuffer's own
// (much larger) capacity.
func (c *casterSession) appendPreAuth(p []byte) error {
	if c.preAuthLen+len(p) > preAuthCap {
		return errHandshakeOversize
	}
	if err := c.history.AppendNoWrap(p); err != nil {
		return errHandshakeOversize
	}
	c.preAuthLen += len(p)
	return nil
}

type handshakeError string

func (e handshakeError) Error() string { return string(e) }

const (
	errHandshakeOversize  handshakeError = "pre-auth buffer oversize"
	errHandshakeMalformed handshakeError = "malformed handshake"
)

// handshakeResult is what scanning the accumulated pre-auth bytes for a
// terminator yields.
type handshakeResult struct {
	complete bool // false: no terminator yet, caller should keep buffering
	name     string
	password string
	rest     []byte // bytes following the terminator in this chunk
}

// scanHandshake looks for the handshake terminator across buffered bytes
// (the caster's own ring buffer contents, as returned by Snapshot) concatenated
// with the newly arrived chunk, and parses the line per spec.md §4.3.
// It returns errHandshakeMalformed for any fatal rejection (bad UTF-8, wrong
// greeting, invalid name) and a zero-value, non-complete result when more
// data is needed. The 1024-byte pre-auth cap is enforced unconditionally
// here, before scanning for the terminator — a single read that both
// exceeds the cap and contains a complete "hello ...\n" line must still be
// rejected as oversize, not accepted because the terminator happened to
// already be present.
func scanHandshake(buffered, incoming []byte) (handshakeResult, error) {
	if len(buffered)+len(incoming) > preAuthCap {
		return handshakeResult{}, errHandshakeOversize
	}

	combined := make([]byte, 0, len(buffered)+len(incoming))
	combined = append(combined, buffered...)
	combined = append(combined, incoming...)

	nl := bytes.IndexByte(combined, '\n')
	if nl < 0 {
		return handshakeResult{}, nil
	}

	eol := nl
	if eol > 0 && combined[eol-1] == '\r' {
		eol--
	}

	line := combined[:eol]
	if !utf8.Valid(line) {
		return handshakeResult{}, errHandshakeMalformed
	}

	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 || parts[0] != "hello" {
		return handshakeResult{}, errHandshakeMalformed
	}
	name := parts[1]
	if name == "" {
		return handshakeResult{}, errHandshakeMalformed
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 {
			return handshakeResult{}, errHandshakeMalformed
		}
	}
	password := ""
	if len(parts) >= 3 {
		password = parts[2]
	}

	rest := combined[nl+1:]
	return handshakeResult{
		complete: true,
		name:     name,
		password: password,
		rest:     rest,
	}, nil
}

// menuEntry projects this caster into the menu snapshot, but only once it is
// authenticated (spec.md §4.3 "Menu entry projection").
func (c *casterSession) menuEntry() (menu.Entry, bool) {
	if !c.authenticated() {
		return menu.Entry{}, false
	}
	return menu.Entry{
		Name:        c.name,
		Watchers:    len(c.subscribers),
		BufferLen:   c.history.Len(),
		ConnectedAt: c.connectedAt,
		LastByteAt:  c.lastByteAt,
	}, true
}
