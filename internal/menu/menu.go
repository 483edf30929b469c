// Package menu renders the paginated watcher menu from a point-in-time
// snapshot of the caster table. It holds no session state of its own; given
// the same inputs it always renders the same bytes.
package menu

import (
	"bytes"
	"fmt"
	"time"

	"github.com/caststream/termcastd/internal/duration"
	"github.com/caststream/termcastd/internal/term"
)

// PageSize is the number of caster slots shown on one menu page, and the
// number of letters ('a'..'p') available to pick one.
const PageSize = 16

var choices = []byte("abcdefghijklmnop")

// Entry is one caster's projection into a menu snapshot. It is only
// constructed for authenticated casters — see spec.md §4.3 "Menu entry
// projection".
type Entry struct {
	Name        string
	Watchers    int
	BufferLen   int
	ConnectedAt time.Time
	LastByteAt  time.Time
}

// Render produces the full menu payload for a watcher, plus the offset the
// renderer actually used (which may differ from requestedOffset — see the
// adjustment policy below). entries is assumed stable for the duration of
// one render call; there is no ordering guarantee across separate calls.
//
// Adjustment policy (L = len(entries), P = PageSize):
//   - requestedOffset < L:            effective = requestedOffset
//   - L == 0 or L mod P != 0:         effective = (L / P) * P
//   - otherwise:                      effective = (L/P - 1) * P
func Render(entries []Entry, totalWatchers int, requestedOffset int, now time.Time) ([]byte, int) {
	l := len(entries)
	effective := requestedOffset
	if requestedOffset >= l {
		if l == 0 || l%PageSize != 0 {
			effective = (l / PageSize) * PageSize
		} else {
			effective = (l/PageSize - 1) * PageSize
		}
	}

	var buf bytes.Buffer
	buf.Write(term.ClearScreen())
	buf.Write(term.ResetCursor())
	buf.WriteString(" ## Termcast")
	buf.WriteString(term.CRLF)
	fmt.Fprintf(&buf, " ## %d sessions available. %d watchers connected.", l, totalWatchers)
	buf.WriteString(term.CRLF)
	buf.WriteString(term.CRLF)

	end := effective + PageSize
	if end > l {
		end = l
	}
	for i := effective; i < end; i++ {
		e := entries[i]
		choice := choices[i-effective]
		idle := duration.Format(now, e.LastByteAt)
		connected := duration.Format(now, e.ConnectedAt)
		fmt.Fprintf(&buf, " %c) %s (idle %s, connected %s, %d watching, %d bytes)",
			choice, e.Name, idle, connected, e.Watchers, e.BufferLen)
		buf.WriteString(term.CRLF)
	}

	buf.WriteString(term.CRLF)
	buf.WriteString(term.Prompt)

	return buf.Bytes(), effective
}
