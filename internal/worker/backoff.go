package worker

import "time"

// Backoff is the poll delay of one slot. It doubles after every empty poll
// up to max and drops back to min once work arrives.
type Backoff struct {
	min, max time.Duration
	cur      time.Duration
}

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max, cur: min}
}

// Current is the delay to wait before the next poll.
func (b *Backoff) Current() time.Duration { return b.cur }

// Double grows the delay, capped at max.
func (b *Backoff) Double() time.Duration {
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return b.cur
}

// Reset drops the delay back to min.
func (b *Backoff) Reset() { b.cur = b.min }
