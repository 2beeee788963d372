package id

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

// ToBaseUnits converts a human amount such as "1.25" into integer base units.
func ToBaseUnits(human string, decimals int) (string, error) {
	if decimals < 0 {
		return "", clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	v := strings.TrimSpace(human)
	if v == "" {
		return "", clierr.New(clierr.CodeUsage, "amount is required")
	}
	whole, frac, hasDot := strings.Cut(v, ".")
	if !isDigits(whole) || (hasDot && !isDigits(frac)) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 1.23", human))
	}
	if len(frac) > decimals {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	out, _ := new(big.Int).SetString(whole, 10)
	out.Mul(out, pow10(decimals))
	if frac != "" {
		f, _ := new(big.Int).SetString(frac+strings.Repeat("0", decimals-len(frac)), 10)
		out.Add(out, f)
	}
	return out.String(), nil
}

// FormatUnits renders integer base units as a trimmed decimal string. Unparseable input renders as "0".
func FormatUnits(baseUnits string, decimals int) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(baseUnits), 10)
	if !ok {
		return "0"
	}
	if decimals <= 0 {
		return n.String()
	}
	sign := ""
	if n.Sign() < 0 {
		sign = "-"
		n.Neg(n)
	}
	q, r := new(big.Int).QuoRem(n, pow10(decimals), new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", decimals-len(frac)) + frac
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
