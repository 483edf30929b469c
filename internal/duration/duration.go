// Package duration formats the gap between two timestamps into the relative
// form the menu view shows next to each caster entry.
package duration

import (
	"fmt"
	"time"
)

// Format renders the elapsed time between then and now.
//
//   - gap > 30 days:  "YYYY-MM-DD HH:MM" of then
//   - gap > 1 day:    "<D>d HH:MM:SS" (HH/MM/SS are remainders mod 24/60/60)
//   - otherwise:      "HH:MM:SS"
func Format(now, then time.Time) string {
	gap := now.Sub(then)
	days := int64(gap / (24 * time.Hour))

	switch {
	case gap > 30*24*time.Hour:
		return then.Format("2006-01-02 15:04")
	case gap > 24*time.Hour:
		h := int64(gap/time.Hour) % 24
		m := int64(gap/time.Minute) % 60
		s := int64(gap/time.Second) % 60
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	default:
		h := int64(gap/time.Hour) % 24
		m := int64(gap/time.Minute) % 60
		s := int64(gap/time.Second) % 60
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
}
