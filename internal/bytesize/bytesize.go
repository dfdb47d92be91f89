// Package bytesize parses human-readable byte quantities ("5MB") and
// memory-limit tokens ("128M"). All multipliers are 1024-based.
package bytesize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unlimited is returned by ParseMemoryLimit for "-1".
const Unlimited int64 = -1

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
)

var (
	humanPattern = regexp.MustCompile(`^([0-9]+)(kb|mb|gb|b)?$`)
	limitPattern = regexp.MustCompile(`^([0-9]+)\s*([kmg])b?$`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Parse converts "5MB", "500 kb", "1024" or "12B" to bytes. Unparsable input,
// including the empty string, yields 0.
func Parse(value string) int64 {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	v = whitespace.ReplaceAllString(v, "")

	m := humanPattern.FindStringSubmatch(v)
	if m == nil {
		return 0
	}
	n, ok := atoi(m[1])
	if !ok {
		return 0
	}
	return scale(n, m[2])
}

// ParseMemoryLimit converts a memory-limit token to bytes. "-1" yields
// Unlimited, a bare integer is taken as bytes, and K/M/G with an optional B
// suffix are scaled. Anything else yields 0, meaning unknown.
func ParseMemoryLimit(value string) int64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if v == "-1" {
		return Unlimited
	}
	if digitsOnly.MatchString(v) {
		n, ok := atoi(v)
		if !ok {
			return 0
		}
		return n
	}

	m := limitPattern.FindStringSubmatch(strings.ToLower(v))
	if m == nil {
		return 0
	}
	n, ok := atoi(m[1])
	if !ok {
		return 0
	}
	return scale(n, m[2]+"b")
}

// Format renders n using IEC units, e.g. "5.0 MiB". Negative values render
// as "unlimited".
func Format(n int64) string {
	if n < 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(n))
}

func atoi(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func scale(n int64, unit string) int64 {
	var mult int64
	switch unit {
	case "kb":
		mult = KiB
	case "mb":
		mult = MiB
	case "gb":
		mult = GiB
	default:
		return n
	}
	if n > (1<<63-1)/mult {
		return 0
	}
	return n * mult
}
