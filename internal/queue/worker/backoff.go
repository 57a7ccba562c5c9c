package worker

import (
	"math/rand/v2"
	"time"
)

// Backoff doubles Base on every attempt up to Max and adds up to a tenth of
// the delay as jitter so retries of a failed batch spread out.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

var defaultBackoff = Backoff{Base: 2 * time.Second, Max: 5 * time.Minute}

func (b Backoff) Delay(attempt int) time.Duration {
	base, ceiling := b.Base, b.Max
	if base <= 0 {
		base = defaultBackoff.Base
	}
	if ceiling < base {
		ceiling = defaultBackoff.Max
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := ceiling
	if attempt < 32 {
		if d := base << attempt; d > 0 && d < ceiling {
			delay = d
		}
	}

	if j := int64(delay / 10); j > 0 {
		delay += time.Duration(rand.Int64N(j))
	}
	return delay
}

// ExponentialBackoff is the Delay of the default schedule: 2s, 4s, 8s, ...
// capped at 5m.
func ExponentialBackoff(attempt int) time.Duration {
	return defaultBackoff.Delay(attempt)
}
