package session

import (
	"fmt"
	"time"
)

// FormatCountdown renders d as MM:SS. Minutes are not wrapped at an hour
// and negative durations show 00:00.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// tick recomputes the time left from the room's expiry and ends the
// session when it reaches zero.
func (s *Session) tick() {
	if s.terminal != Active {
		return
	}
	remaining := s.room.Remaining(s.opts.Now())
	s.remaining = remaining
	s.emit(CountdownTick{Remaining: remaining, Display: FormatCountdown(remaining)})
	if remaining <= 0 {
		s.terminate(Ended, ReasonExpired)
	}
}
