package transport

import "time"

// backoffSchedule is the fixed reconnect delay table, indexed by attempt
// count. Attempts past the end reuse the last entry.
var backoffSchedule = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// DelayFor returns the reconnect delay for the given attempt (1-based).
func DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}
