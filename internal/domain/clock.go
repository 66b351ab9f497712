package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source. It decides "today" for VersionAuto table
// selection and stamps GeneratedAt on daily records, so tests freeze it to
// land on either side of the breakpoint cutover.
var clock = clockwork.NewRealClock()

// SetClock swaps the package time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
