package format

import (
	"math"
	"strings"
	"testing"
)

func TestHashrate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "0.00 H/s"},
		{500, "500.00 H/s"},
		{999.994, "999.99 H/s"},
		{1_000, "1.00 kH/s"},
		{2_500, "2.50 kH/s"},
		{999_999, "1000.00 kH/s"},
		{1_000_000, "1.00 mH/s"},
		{3_400_000, "3.40 mH/s"},
		{2_500_000_000, "2500.00 mH/s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Hashrate(tt.rate); got != tt.want {
				t.Errorf("Hashrate(%v) = %q, want %q", tt.rate, got, tt.want)
			}
		})
	}
}

func TestHashrate_Thresholds(t *testing.T) {
	for r := 0.0; r < 3_000_000; r += 997.3 {
		got := Hashrate(r)
		switch {
		case r < 1_000:
			if !strings.HasSuffix(got, " H/s") {
				t.Errorf("Hashrate(%v) = %q, want H/s suffix", r, got)
			}
		case r < 1_000_000:
			if !strings.HasSuffix(got, " kH/s") {
				t.Errorf("Hashrate(%v) = %q, want kH/s suffix", r, got)
			}
		default:
			if !strings.HasSuffix(got, " mH/s") {
				t.Errorf("Hashrate(%v) = %q, want mH/s suffix", r, got)
			}
		}
	}
}

func TestBalance(t *testing.T) {
	if got := Balance("12.5 DUCO", DefaultGlyph); got != "12.5 ᕲ" {
		t.Errorf("Balance() = %q, want %q", got, "12.5 ᕲ")
	}
	if got := Balance("0 DUCO", "D"); got != "0 D" {
		t.Errorf("Balance() = %q, want %q", got, "0 D")
	}
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		display string
		want    float64
		wantErr bool
	}{
		{"0 DUCO", 0, false},
		{"101.25 DUCO", 101.25, false},
		{" 7 DUCO ", 7, false},
		{"42", 42, false},
		{"lots DUCO", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got, err := ParseBalance(tt.display)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBalance(%q) error = %v, wantErr %v", tt.display, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBalance(%q) = %v, want %v", tt.display, got, tt.want)
			}
		})
	}
}

func TestProjection(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		first bool
		want  string
	}{
		{"first cycle", 123, true, "0 ᕲ"},
		{"integral", 24, false, "24.0 ᕲ"},
		{"zero after first", 0, false, "0.0 ᕲ"},
		{"fraction", 1.5, false, "1.5 ᕲ"},
		{"negative", -2.25, false, "-2.25 ᕲ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Projection(tt.rate, tt.first, DefaultGlyph); got != tt.want {
				t.Errorf("Projection(%v, %v) = %q, want %q", tt.rate, tt.first, got, tt.want)
			}
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1234.5, "1234.5"},
		{0.0001, "0.0001"},
		{0.00012, "0.00012"},
		{5e-05, "5e-05"},
		{-5e-05, "-5e-05"},
		{1.5e-07, "1.5e-07"},
		{9999999999999998, "9999999999999998.0"},
		{1e16, "1e+16"},
		{1.2345e20, "1.2345e+20"},
		{1e100, "1e+100"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Float(tt.v); got != tt.want {
				t.Errorf("Float(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestProjection_ExponentForm(t *testing.T) {
	if got := Projection(0.00005, false, DefaultGlyph); got != "5e-05 ᕲ" {
		t.Errorf("Projection(5e-05) = %q, want %q", got, "5e-05 ᕲ")
	}
}
