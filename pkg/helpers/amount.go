// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
)

// BpsDenominator is the basis-point denominator (100% = 10000 bps).
const BpsDenominator = 10000

// ApplySlippage returns floor(amount * (10000 - slippageBps) / 10000).
// This is the minimum acceptable output for a hop quoted at amount.
// The result never exceeds amount for slippageBps in [0, 10000].
func ApplySlippage(amount *big.Int, slippageBps uint16) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	keep := big.NewInt(BpsDenominator - int64(slippageBps))
	out := new(big.Int).Mul(amount, keep)
	return out.Div(out, big.NewInt(BpsDenominator))
}

// ApplyFeeBps returns floor(amount * feeBps / 10000), the fee portion of amount.
func ApplyFeeBps(amount *big.Int, feeBps uint16) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(feeBps)))
	return fee.Div(fee, big.NewInt(BpsDenominator))
}

// ParseBig parses a base-10 integer string into a big.Int.
// Used for amounts arriving over JSON as decimal strings.
func ParseBig(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return v, nil
}

// FormatUnits formats an amount in smallest units as a decimal string.
// For example, FormatUnits(big 1500000000000000000, 18) returns "1.5".
// Display-only; amount arithmetic stays in big.Int everywhere else.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Div(amount, divisor)
	frac := new(big.Int).Mod(amount, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", int(decimals), frac)
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// ParseUnits parses a decimal string into smallest units.
// For example, ParseUnits("1.5", 18) returns 1500000000000000000.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}

	var wholeStr, fracStr string
	for i, c := range s {
		if c == '.' {
			wholeStr = s[:i]
			fracStr = s[i+1:]
			break
		}
	}
	if wholeStr == "" && fracStr == "" {
		wholeStr = s
	}

	for _, c := range wholeStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}
	for _, c := range fracStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}

	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}
	if len(fracStr) > int(decimals) {
		fracStr = fracStr[:decimals]
	}

	amount, ok := new(big.Int).SetString(wholeStr+fracStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return amount, nil
}
