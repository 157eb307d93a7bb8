// Package format renders hashrates and DUCO amounts the way the dashboard
// prints them.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CurrencySuffix is the unit the pool appends to balance strings.
const CurrencySuffix = "DUCO"

// DefaultGlyph replaces CurrencySuffix in everything the dashboard renders.
const DefaultGlyph = "ᕲ"

// Hashrate scales a rate in hashes per second to H/s, kH/s or mH/s with two
// decimals. Thresholds are 1e3 and 1e6; there is no unit above mH/s.
func Hashrate(rate float64) string {
	unit := "H"
	switch {
	case rate < 1_000:
	case rate < 1_000_000:
		rate /= 1_000
		unit = "kH"
	default:
		rate /= 1_000_000
		unit = "mH"
	}
	return fmt.Sprintf("%.2f %s/s", rate, unit)
}

// Balance swaps the " DUCO" suffix of a balance display string for glyph.
func Balance(display, glyph string) string {
	return strings.Replace(display, " "+CurrencySuffix, " "+glyph, 1)
}

// ParseBalance strips the currency suffix from a balance display string and
// parses the remaining number.
func ParseBalance(display string) (float64, error) {
	number := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(display), CurrencySuffix))
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance %q: %w", display, err)
	}
	return value, nil
}

// Projection formats a projected daily rate followed by glyph. Before a rate
// can be computed (first cycle) it prints a bare "0"; afterwards it prints the
// shortest decimal form of the float, keeping a ".0" on integral values.
func Projection(rate float64, first bool, glyph string) string {
	if first {
		return "0 " + glyph
	}
	return Float(rate) + " " + glyph
}

// Float prints the shortest representation of v that round-trips. Values
// with a decimal exponent below -4 or at least 16 use exponent form ("5e-05",
// "1e+16"); others print in decimal with ".0" appended to integral values.
func Float(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	if v != 0 {
		sci := strconv.FormatFloat(v, 'e', -1, 64)
		exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
		if err == nil && (exp < -4 || exp >= 16) {
			return sci
		}
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
