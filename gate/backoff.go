package gate

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

type Strategy string

const (
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Backoff computes the wait before the next probe.
type Backoff struct {
	Strategy Strategy
	Base     time.Duration
	Max      time.Duration
}

// DefaultBackoff matches the retry loops the service always used:
// 2s, 4s, 8s, 16s, then 30s for every further attempt.
func DefaultBackoff() Backoff {
	return Backoff{
		Strategy: StrategyExponential,
		Base:     2 * time.Second,
		Max:      30 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		return 0
	}

	var d time.Duration
	switch b.Strategy {
	case StrategyLinear:
		if b.Max > 0 && time.Duration(attempt) > b.Max/b.Base {
			return b.Max
		}
		d = b.Base * time.Duration(attempt)
		if d/time.Duration(attempt) != b.Base {
			return time.Duration(math.MaxInt64)
		}
	default:
		// shift would overflow well before 62 doublings
		shift := attempt - 1
		if shift > 62 {
			shift = 62
		}
		if b.Max > 0 && (b.Max>>uint(shift)) < b.Base {
			return b.Max
		}
		d = b.Base << uint(shift)
		if d <= 0 || d>>uint(shift) != b.Base {
			return time.Duration(math.MaxInt64)
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// BackoffFromEnv reads <PREFIX>_BACKOFF (linear|exponential), <PREFIX>_BACKOFF_BASE_MS
// and <PREFIX>_BACKOFF_MAX_MS, falling back to def for anything missing.
func BackoffFromEnv(prefix string, def Backoff) Backoff {
	b := def
	switch Strategy(strings.ToLower(strings.TrimSpace(os.Getenv(prefix + "_BACKOFF")))) {
	case StrategyLinear:
		b.Strategy = StrategyLinear
	case StrategyExponential:
		b.Strategy = StrategyExponential
	}
	if ms, ok := msFromEnv(prefix + "_BACKOFF_BASE_MS"); ok {
		b.Base = ms
	}
	if ms, ok := msFromEnv(prefix + "_BACKOFF_MAX_MS"); ok {
		b.Max = ms
	}
	return b
}

func msFromEnv(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
