package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// canonicalTimestampLayout matches NormalizeTimestamp's output: fixed
// six-digit fractional seconds and a colon-separated zone offset.
const canonicalTimestampLayout = "2006-01-02 15:04:05.000000-07:00"

// timestampPattern matches "YYYY-MM-DD HH:MM:SS[.fraction][±HH[:MM]]" per
// spec §4.C's canonical timestamp normalization grammar.
var timestampPattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(\.\d+)?([+-]\d{1,2}(:\d{1,2})?)?$`)

// functionCallPattern matches the same "looks like a SQL function call"
// shape used for insert-payload literalisation (spec §4.C).
var functionCallPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*\(.*\)$`)

// IsFunctionCall reports whether s should be passed through unquoted as a
// SQL expression rather than treated as a literal value.
func IsFunctionCall(s string) bool {
	return functionCallPattern.MatchString(s)
}

// NormalizeTimestamp converts a user-supplied timestamp string into the
// canonical form "YYYY-MM-DD HH:MM:SS.uuuuuu±HH:MM": fractional seconds
// are padded to exactly six digits (truncated if longer), a missing
// timezone defaults to "+00:00", and a partial timezone offset like
// "+1" or "+01:3" is padded out to "+01:00" / "+01:30". Returns false if
// s doesn't match the accepted grammar.
func NormalizeTimestamp(s string) (string, bool) {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}

	datetime := m[1]
	frac := normalizeFraction(m[2])
	tz, ok := normalizeTimezone(m[3])
	if !ok {
		return "", false
	}

	return fmt.Sprintf("%s.%s%s", datetime, frac, tz), true
}

// ParseTimestamp normalizes s against the accepted timestamp grammar and
// parses it into Unix microseconds, preserving whatever sub-second
// precision the string carried (spec §3's microsecond-precision userTs).
// Returns an error if s doesn't match the grammar.
func ParseTimestamp(s string) (int64, error) {
	normalized, ok := NormalizeTimestamp(s)
	if !ok {
		return 0, fmt.Errorf("timestamp %q does not match the accepted grammar", s)
	}
	t, err := time.Parse(canonicalTimestampLayout, normalized)
	if err != nil {
		return 0, err
	}
	return t.UnixMicro(), nil
}

func normalizeFraction(frac string) string {
	digits := strings.TrimPrefix(frac, ".")
	switch {
	case digits == "":
		return "000000"
	case len(digits) < 6:
		return digits + strings.Repeat("0", 6-len(digits))
	default:
		return digits[:6]
	}
}

func normalizeTimezone(tz string) (string, bool) {
	if tz == "" {
		return "+00:00", true
	}

	sign := tz[0:1]
	rest := tz[1:]

	var hourPart, minutePart string
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		hourPart = rest[:idx]
		minutePart = rest[idx+1:]
	} else {
		hourPart = rest
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}

	minute := 0
	if minutePart != "" {
		minute, err = strconv.Atoi(minutePart)
		if err != nil {
			return "", false
		}
		// A single trailing digit like "+01:3" pads to tens: "30".
		if len(minutePart) == 1 {
			minute *= 10
		}
	}
	if minute < 0 || minute > 59 {
		return "", false
	}

	return fmt.Sprintf("%s%02d:%02d", sign, hour, minute), true
}
