// Package relay implements the Relay Core: two TCP listeners (caster and
// watcher), a single loop goroutine owning all session state, and the
// per-connection reader goroutines and hash worker pool that feed it.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/caststream/termcastd/internal/auth"
	"github.com/caststream/termcastd/internal/menu"
	"github.com/caststream/termcastd/internal/term"
)

// writeTimeout bounds every write the loop performs to a client socket. A
// write that blows past this is treated the same as any other write error:
// the client is torn down (spec.md §9, "no write quota/backpressure queue —
// the deadline is the backpressure mechanism").
const writeTimeout = 5 * time.Second

// hashWorkers is the size of the fixed pool computing Argon2id checks.
const hashWorkers = 4

// Config configures a Server's two listen addresses and optional MOTD. It is
// deliberately narrower than the on-disk config.Config: callers resolve
// defaults and flag overrides before constructing a Server.
type Config struct {
	CasterAddr  string
	WatcherAddr string
	MOTD        string
}

// Server is the Relay Core. All of its session state (casters, watchers,
// handle allocator) is owned exclusively by the goroutine running
// Run's event loop; every other goroutine in the process only ever sends on
// events, never reads session state directly. That ownership discipline is
// what lets this package get away with zero mutexes around session state.
type Server struct {
	cfg Config
	log *slog.Logger

	casterListener  net.Listener
	watcherListener net.Listener

	handles  *handleAllocator
	casters  map[Handle]*casterSession
	watchers map[Handle]*watcherSession

	credentials *auth.Store
	hashPool    *hashWorkerPool

	events chan event

	startedAt time.Time
}

// NewServer builds a Server; it does not bind sockets until Listen or Run.
func NewServer(cfg Config, log *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		log:         log,
		handles:     newHandleAllocator(),
		casters:     make(map[Handle]*casterSession),
		watchers:    make(map[Handle]*watcherSession),
		credentials: auth.New(),
		events:      make(chan event, 256),
	}
}

// Listen binds both listeners. Separated from Run so callers (main) can
// surface a bind failure before committing to the run loop (spec.md §7:
// listener bind failure is the one error surfaced to the process as fatal).
func (s *Server) Listen() error {
	cl, err := net.Listen("tcp", s.cfg.CasterAddr)
	if err != nil {
		return fmt.Errorf("listen caster addr %s: %w", s.cfg.CasterAddr, err)
	}
	wl, err := net.Listen("tcp", s.cfg.WatcherAddr)
	if err != nil {
		cl.Close()
		return fmt.Errorf("listen watcher addr %s: %w", s.cfg.WatcherAddr, err)
	}
	s.casterListener = cl
	s.watcherListener = wl
	return nil
}

// Run accepts connections and drives the event loop until ctx is canceled.
// It binds listeners itself if Listen has not already been called.
func (s *Server) Run(ctx context.Context) error {
	if s.casterListener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.startedAt = time.Now()
	s.hashPool = startHashWorkers(hashWorkers, s.credentials, s.events)
	defer s.hashPool.stop()

	go s.acceptLoop(ctx, s.casterListener, clientCaster)
	go s.acceptLoop(ctx, s.watcherListener, clientWatcher)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Server) shutdown() {
	s.casterListener.Close()
	s.watcherListener.Close()
	for _, cs := range s.casters {
		cs.conn.Close()
	}
	for _, w := range s.watchers {
		w.conn.Close()
	}
	s.log.Info("relay core shut down", "uptime", time.Since(s.startedAt))
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, kind clientKind) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.log.Warn("accept failed", "kind", kind, "err", err)
			continue
		}
		select {
		case s.events <- acceptEvent{kind: kind, conn: conn}:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// readLoop feeds one socket's bytes onto the shared event channel until it
// hits a read error (including the remote end closing), at which point it
// sends one final event with err set and exits.
func (s *Server) readLoop(h Handle, kind clientKind, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		s.events <- dataEvent{handle: h, kind: kind, data: data, err: err}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ev event) {
	switch e := ev.(type) {
	case acceptEvent:
		s.handleAccept(e)
	case dataEvent:
		if e.kind == clientCaster {
			s.handleCasterData(e)
		} else {
			s.handleWatcherData(e)
		}
	case hashResultEvent:
		s.handleHashResult(e)
	case statsRequest:
		s.handleStatsRequest(e)
	}
}

func (s *Server) handleAccept(e acceptEvent) {
	h := s.handles.alloc()
	now := time.Now()

	if e.kind == clientCaster {
		s.casters[h] = newCasterSession(h, e.conn, now)
		go s.readLoop(h, clientCaster, e.conn)
		s.log.Info("caster connected", "handle", h)
		return
	}

	w := newWatcherSession(h, e.conn)
	s.watchers[h] = w

	if err := s.writeTo(e.conn, term.DisableLinemode()); err != nil {
		s.disconnectWatcher(h)
		return
	}
	if err := s.writeTo(e.conn, term.DisableLocalEcho()); err != nil {
		s.disconnectWatcher(h)
		return
	}
	if s.cfg.MOTD != "" {
		if err := s.writeTo(e.conn, []byte(s.cfg.MOTD+term.CRLF)); err != nil {
			s.disconnectWatcher(h)
			return
		}
	}
	w.state = stateMainMenu
	s.renderMenuTo(w)
	go s.readLoop(h, clientWatcher, e.conn)
	s.log.Info("watcher connected", "handle", h)
}

func (s *Server) writeTo(conn net.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(data)
	conn.SetWriteDeadline(time.Time{})
	return err
}

// --- caster side ---

func (s *Server) handleCasterData(e dataEvent) {
	cs, ok := s.casters[e.handle]
	if !ok {
		return
	}
	if len(e.data) > 0 {
		cs.lastByteAt = time.Now()
		switch {
		case cs.authenticated():
			s.broadcastFromCaster(cs, e.data)
		case cs.pending:
			// More bytes arrived while the worker is still verifying; park
			// them to relay once the hash result comes back.
			cs.pendingExtra = append(cs.pendingExtra, e.data...)
		default:
			s.advanceHandshake(cs, e.data)
		}
	}
	if e.err != nil {
		s.disconnectCaster(e.handle, "read closed")
	}
}

func (s *Server) advanceHandshake(cs *casterSession, data []byte) {
	buffered := cs.history.Snapshot()
	res, err := scanHandshake(buffered, data)
	if err != nil {
		s.disconnectCaster(cs.handle, "handshake rejected")
		return
	}
	if !res.complete {
		if err := cs.appendPreAuth(data); err != nil {
			s.disconnectCaster(cs.handle, "pre-auth buffer oversize")
		}
		return
	}

	// Handshake line parsed. Clear the ring (it only ever held pre-auth
	// bytes) and park the caster while a worker verifies the password.
	cs.history.Clear()
	cs.preAuthLen = 0
	cs.pending = true
	cs.pendingName = res.name
	cs.pendingExtra = append([]byte(nil), res.rest...)
	s.hashPool.submit(hashJob{handle: cs.handle, name: res.name, password: res.password})
}

func (s *Server) handleHashResult(e hashResultEvent) {
	cs, ok := s.casters[e.handle]
	if !ok || !cs.pending {
		return
	}
	cs.pending = false
	if e.err != nil {
		s.disconnectCaster(e.handle, "credential mismatch")
		return
	}
	cs.name = e.name
	extra := cs.pendingExtra
	cs.pendingExtra = nil
	s.log.Info("caster authenticated", "handle", e.handle, "name", e.name)
	if len(extra) > 0 {
		cs.lastByteAt = time.Now()
		s.broadcastFromCaster(cs, extra)
	}
}

func (s *Server) broadcastFromCaster(cs *casterSession, data []byte) {
	cs.history.Append(data)
	for h := range cs.subscribers {
		w, ok := s.watchers[h]
		if !ok {
			continue
		}
		if err := s.writeTo(w.conn, data); err != nil {
			s.disconnectWatcher(h)
		}
	}
}

// disconnectCaster tears a caster down and resets every subscribed watcher to
// MainMenu (spec.md §4.6 disconnect cascade).
func (s *Server) disconnectCaster(h Handle, reason string) {
	cs, ok := s.casters[h]
	if !ok {
		return
	}
	for wh := range cs.subscribers {
		if w, ok := s.watchers[wh]; ok {
			w.state = stateMainMenu
			w.watching = 0
			s.renderMenuTo(w)
		}
	}
	cs.conn.Close()
	delete(s.casters, h)
	s.log.Info("caster disconnected", "handle", h, "reason", reason)
}

// --- watcher side ---

func (s *Server) handleWatcherData(e dataEvent) {
	w, ok := s.watchers[e.handle]
	if !ok {
		return
	}
	if len(e.data) > 0 {
		s.processWatcherInput(w, e.data)
	}
	if e.err != nil {
		s.disconnectWatcher(e.handle)
	}
}

// processWatcherInput feeds data through the watcher's state machine one
// terminal action at a time. ShowMenu does not end the batch: it re-renders
// and keeps consuming the same read's remaining bytes (spec.md §4.4, §9).
func (s *Server) processWatcherInput(w *watcherSession, data []byte) {
	remaining := data
	for len(remaining) > 0 {
		// w may already have been torn down by a write failure below.
		if _, ok := s.watchers[w.handle]; !ok {
			return
		}
		action, arg, consumed := w.step(remaining)
		remaining = remaining[consumed:]
		switch action {
		case actionShowMenu:
			s.renderMenuTo(w)
		case actionWatch:
			s.attachWatcher(w, arg)
			return
		case actionStopWatching:
			s.detachWatcherToMenu(w)
			return
		case actionExit:
			s.disconnectWatcher(w.handle)
			return
		}
	}
}

func (s *Server) snapshotEntries() ([]menu.Entry, []Handle) {
	entries := make([]menu.Entry, 0, len(s.casters))
	handles := make([]Handle, 0, len(s.casters))
	for h, cs := range s.casters {
		if e, ok := cs.menuEntry(); ok {
			entries = append(entries, e)
			handles = append(handles, h)
		}
	}
	return entries, handles
}

func (s *Server) renderMenuTo(w *watcherSession) {
	entries, handles := s.snapshotEntries()
	s.renderMenuWithOffset(w, w.offset, entries, handles)
}

// renderMenuWithOffset renders entries/handles (a single snapshot pair taken
// together by snapshotEntries) and records handles as the ordering this
// watcher's next 'a'..'p' keypress must resolve against — resolving instead
// against a freshly recomputed map iteration could pick a different caster
// than the one the watcher is actually looking at (map iteration order is
// randomized per range, even over an unmutated map).
func (s *Server) renderMenuWithOffset(w *watcherSession, offset int, entries []menu.Entry, handles []Handle) {
	payload, eff := menu.Render(entries, len(s.watchers), offset, time.Now())
	w.offset = eff
	w.menuHandles = handles
	if err := s.writeTo(w.conn, payload); err != nil {
		s.disconnectWatcher(w.handle)
	}
}

func (s *Server) attachWatcher(w *watcherSession, offset int) {
	if offset < 0 {
		offset = 0
	}
	handles := w.menuHandles
	if offset >= len(handles) {
		entries, freshHandles := s.snapshotEntries()
		s.renderMenuWithOffset(w, offset, entries, freshHandles)
		return
	}
	target := handles[offset]
	cs, ok := s.casters[target]
	if !ok {
		entries, freshHandles := s.snapshotEntries()
		s.renderMenuWithOffset(w, offset, entries, freshHandles)
		return
	}

	if err := s.writeTo(w.conn, term.ClearScreen()); err != nil {
		s.disconnectWatcher(w.handle)
		return
	}
	if err := s.writeTo(w.conn, term.ResetCursor()); err != nil {
		s.disconnectWatcher(w.handle)
		return
	}
	if err := s.writeTo(w.conn, cs.history.Snapshot()); err != nil {
		s.disconnectWatcher(w.handle)
		return
	}

	w.state = stateWatching
	w.watching = target
	cs.subscribers[w.handle] = struct{}{}
	s.log.Info("watcher attached", "watcher", w.handle, "caster", target)
}

func (s *Server) detachWatcherToMenu(w *watcherSession) {
	if cs, ok := s.casters[w.watching]; ok {
		delete(cs.subscribers, w.handle)
	}
	w.state = stateMainMenu
	w.watching = 0
	s.renderMenuTo(w)
}

func (s *Server) disconnectWatcher(h Handle) {
	w, ok := s.watchers[h]
	if !ok {
		return
	}
	if w.state == stateWatching {
		if cs, ok := s.casters[w.watching]; ok {
			delete(cs.subscribers, w.handle)
		}
	}
	w.conn.Close()
	delete(s.watchers, h)
	s.log.Info("watcher disconnected", "handle", h)
}

// --- stats ---

func (s *Server) handleStatsRequest(e statsRequest) {
	edges := 0
	for _, cs := range s.casters {
		edges += len(cs.subscribers)
	}
	e.reply <- Stats{
		Casters:         len(s.casters),
		Watchers:        len(s.watchers),
		SubscriberEdges: edges,
	}
}

// Stats asks the loop goroutine for a point-in-time snapshot. It is safe to
// call from any goroutine: the request and its reply travel over the same
// channel the loop already owns, so nothing outside the loop ever touches
// session state directly (spec.md §4.6, ambient stats reporter).
func (s *Server) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case s.events <- statsRequest{reply: reply}:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
