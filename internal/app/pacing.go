package app

import "time"

// sleepRemainder sleeps whatever is left of period after work that began at
// start. A slow tick is not caught up on, so a long session drifts behind the
// nominal rate.
func sleepRemainder(sleep func(time.Duration), start time.Time, period time.Duration) {
	if d := period - time.Since(start); d > 0 {
		sleep(d)
	}
}
