package relay

import "net"

// watcherState is the per-watcher state machine from spec.md §4.4.
type watcherState int

const (
	stateConnecting watcherState = iota
	stateMainMenu
	stateWatching
	stateDisconnecting
)

// watcherSession is the per-watcher state described in spec.md §3/§4.4.
type watcherSession struct {
	handle Handle
	conn   net.Conn

	offset int
	state  watcherState

	// watching is only meaningful while state == stateWatching.
	watching Handle

	// menuHandles is the caster ordering used for the menu page this watcher
	// last had rendered, so that a later 'a'..'p' keypress resolves against
	// the exact list the watcher is looking at rather than a freshly
	// recomputed (and, over a Go map, differently ordered) snapshot.
	menuHandles []Handle
}

func newWatcherSession(h Handle, conn net.Conn) *watcherSession {
	return &watcherSession{
		handle: h,
		conn:   conn,
		state:  stateConnecting,
	}
}

// watcherAction is the result of applying one input byte to a watcher's
// state machine (spec.md §4.4).
type watcherAction int

const (
	actionNothing watcherAction = iota
	actionShowMenu
	actionWatch
	actionStopWatching
	actionExit
)

// applyByte advances the watcher's state machine by one input byte and
// returns the action it produced, plus (for actionWatch) the requested
// caster-list offset. Only MainMenu and Watching react to input; Connecting
// and Disconnecting ignore bytes.
func (w *watcherSession) applyByte(b byte) (watcherAction, int) {
	switch w.state {
	case stateWatching:
		if b == 'q' {
			w.state = stateMainMenu
			return actionStopWatching, 0
		}
		return actionNothing, 0

	case stateMainMenu:
		switch {
		case b >= 'a' && b <= 'p':
			return actionWatch, w.offset + int(b-'a')
		case b == 'q':
			w.state = stateDisconnecting
			return actionExit, 0
		default:
			return actionShowMenu, 0
		}

	default: // Connecting, Disconnecting
		return actionNothing, 0
	}
}

// step scans data for the next byte that produces a non-Nothing action,
// applying every intervening byte along the way (they all resolve to
// Nothing — e.g. Connecting/Disconnecting swallow everything). It returns
// how many bytes were consumed so the caller can keep feeding the
// remainder: ShowMenu does not end a read's input batch, only Watch,
// StopWatching and Exit do (spec.md §4.4, §9).
func (w *watcherSession) step(data []byte) (action watcherAction, arg int, consumed int) {
	for i, b := range data {
		a, n := w.applyByte(b)
		if a != actionNothing {
			return a, n, i + 1
		}
	}
	return actionNothing, 0, len(data)
}
