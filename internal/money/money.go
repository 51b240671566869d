// Package money converts between display amounts (decimal strings) and ledger
// amounts (integer minor currency units). Everything downstream of the HTTP
// boundary works exclusively in minor units; this package is the only place
// decimals exist.
package money

import (
	"fmt"
	"strings"

	"github.com/equicare/equicare-platform/internal/apperr"
)

// DefaultCommissionBasisPoints is the platform's bookkeeping commission (5%).
const DefaultCommissionBasisPoints int64 = 500

// ToMinorUnits parses a decimal display amount ("12.34") into minor units
// (1234). It accepts at most two fractional digits and rejects negative or
// malformed input with an invalid-amount error.
func ToMinorUnits(display string) (int64, error) {
	s := strings.TrimSpace(display)
	if s == "" {
		return 0, apperr.New(apperr.KindInvalidAmount, "amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q is negative", display)
	}
	s = strings.TrimPrefix(s, "+")

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q is not a decimal", display)
	}
	if len(fracPart) > 2 {
		return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q has more than two fractional digits", display)
	}

	var units int64
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q is not a decimal", display)
		}
		units = units*10 + int64(c-'0')
		if units > (1<<62)/100 {
			return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q is out of range", display)
		}
	}

	var cents int64
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return 0, apperr.Newf(apperr.KindInvalidAmount, "amount %q is not a decimal", display)
		}
		cents = cents*10 + int64(c-'0')
	}
	if len(fracPart) == 1 {
		cents *= 10
	}

	return units*100 + cents, nil
}

// ToDisplay renders minor units as a two-decimal display string. Total for any
// non-negative input.
func ToDisplay(minor int64) string {
	if minor < 0 {
		return fmt.Sprintf("-%d.%02d", -minor/100, -minor%100)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// Commission computes the platform commission on a price in minor units, with
// the rate expressed in basis points. Rounding is half up and the arithmetic
// stays in integers so equal prices always yield equal commissions.
func Commission(priceMinor int64, rateBasisPoints int64) int64 {
	if priceMinor <= 0 || rateBasisPoints <= 0 {
		return 0
	}
	return (priceMinor*rateBasisPoints + 5000) / 10000
}
