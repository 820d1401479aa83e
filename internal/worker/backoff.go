package worker

import "time"

// Backoff управляет повторной доставкой уведомлений: задержка удваивается
// от Base до потолка Cap, после Attempts неудач задача уходит в dead letter.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// Delay returns how long to wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < n; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
	}
	return d
}

// Exhausted reports whether a task that already failed retries times should
// stop being rescheduled.
func (b Backoff) Exhausted(retries int) bool {
	return retries >= b.Attempts
}
