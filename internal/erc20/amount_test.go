package erc20

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"10", 18, "10000000000000000000"},
		{"0.5", 18, "500000000000000000"},
		{".25", 2, "25"},
		{"100", 0, "100"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "1.234", "abc", "1.x"} {
		if _, err := ParseAmount(in, 2); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	fifty, _ := new(big.Int).SetString("50000000000000000000", 10)
	if got := FormatAmount(fifty, 18); got != "50" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := FormatAmount(big.NewInt(1500), 3); got != "1.5" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := FormatAmount(big.NewInt(-25), 2); got != "-0.25" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := FormatAmount(nil, 18); got != "0" {
		t.Fatalf("format mismatch: %s", got)
	}
}
