package souldb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/andreyvit/souldb/objcodec"
)

// Never is a TTL that never elapses.
const Never int64 = math.MaxInt64

const DefaultItemCountWarnThreshold = 100

type Options struct {
	Context context.Context
	Logger  *slog.Logger
	Now     func() time.Time

	// Registry resolves object aliases found in item payloads. Items that
	// reference an unknown alias load as empty placeholder items.
	Registry *objcodec.Registry

	// Archive, if set, receives every record that fades or is removed.
	Archive *Archive

	// ItemCountWarnThreshold is the item (and item field) count above which
	// loading logs a warning. Defaults to DefaultItemCountWarnThreshold.
	ItemCountWarnThreshold int
}

func (o *Options) setDefaults() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ItemCountWarnThreshold <= 0 {
		o.ItemCountWarnThreshold = DefaultItemCountWarnThreshold
	}
}

// ParseTTL parses durations like "30s", "15m", "2h", "7d" or "never" into
// milliseconds. Anything other than letters and digits is ignored, so
// "1 d" and "1-d" work too. An empty string returns def.
func ParseTTL(s string, def int64) (int64, error) {
	sanitized := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
	if sanitized == "" {
		return def, nil
	}
	if strings.EqualFold(sanitized, "never") {
		return Never, nil
	}

	i := strings.IndexFunc(sanitized, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		return def, fmt.Errorf("time %q is missing a unit", s)
	}
	if i == 0 {
		return def, fmt.Errorf("time %q is missing an amount", s)
	}
	amount, err := strconv.ParseInt(sanitized[:i], 10, 64)
	if err != nil {
		return def, fmt.Errorf("time %q is invalid: %w", s, err)
	}

	var unit int64
	switch sanitized[i] {
	case 's':
		unit = 1000
	case 'm':
		unit = 60 * 1000
	case 'h':
		unit = 60 * 60 * 1000
	case 'd':
		unit = 24 * 60 * 60 * 1000
	default:
		return def, fmt.Errorf("time %q has invalid unit", s)
	}
	if amount > math.MaxInt64/unit {
		return Never, nil
	}
	return amount * unit, nil
}

// saturatingAdd returns a+b clamped to the int64 range.
func saturatingAdd(a, b int64) int64 {
	s := a + b
	if (a >= 0) == (b >= 0) && (s >= 0) != (a >= 0) {
		if a >= 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return s
}

// elapsed reports whether ttl has passed between start and now.
func elapsed(start, ttl, now int64) bool {
	return saturatingAdd(start, ttl) <= now
}
