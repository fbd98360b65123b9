package erc20

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatAmount renders base units as a decimal token amount, trimming
// trailing fractional zeros.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	text = strings.TrimRight(text, "0")
	text = strings.TrimSuffix(text, ".")
	if sign < 0 {
		return "-" + text
	}
	return text
}

// ParseAmount converts a decimal token amount such as "10" or "0.5" into
// base units. Negative values and excess precision are rejected.
func ParseAmount(input string, decimals uint8) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(input, "-") {
		return nil, fmt.Errorf("amount must not be negative: %s", input)
	}

	whole, frac, _ := strings.Cut(input, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %s exceeds %d decimals", input, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	return value, nil
}

// ParseBaseUnits parses an integer amount already expressed in base units.
func ParseBaseUnits(input string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(input), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", input)
	}
	return value, nil
}
