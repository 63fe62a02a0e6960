// Package extract recovers structured identity fields from noisy OCR text.
// Every function here is total: malformed input produces absent fields,
// never an error.
package extract

import (
	"strconv"
	"strings"
)

// NormalizeText trims each line and drops blank lines, preserving line
// order. No other transformation happens here; the field heuristics rely on
// line-relative position.
func NormalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// NormalizeDate canonicalizes a date token to zero-padded DD/MM/YYYY.
// The token is split on "-", "/" or "."; a 4-digit first component means
// YYYY-MM-DD ordering, otherwise DD-MM-YYYY. A 2-digit year expands to 19xx
// when greater than 30, else 20xx. Malformed or non-numeric tokens are
// returned unchanged. Idempotent for already-normalized input.
func NormalizeDate(token string) string {
	parts := strings.FieldsFunc(token, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(parts) != 3 {
		return token
	}
	for _, p := range parts {
		if p == "" {
			return token
		}
		if _, err := strconv.Atoi(p); err != nil {
			return token
		}
	}

	var day, month, year string
	if len(parts[0]) == 4 {
		year, month, day = parts[0], parts[1], parts[2]
	} else {
		day, month, year = parts[0], parts[1], parts[2]
	}

	if len(year) == 2 {
		n, _ := strconv.Atoi(year)
		if n > 30 {
			year = "19" + year
		} else {
			year = "20" + year
		}
	}

	if len(day) > 2 || len(month) > 2 || len(year) != 4 {
		return token
	}
	if len(day) == 1 {
		day = "0" + day
	}
	if len(month) == 1 {
		month = "0" + month
	}

	return day + "/" + month + "/" + year
}
