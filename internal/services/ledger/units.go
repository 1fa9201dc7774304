package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"ticket-market/internal/status"
)

// Decimals is the number of decimal places between the display currency
// and its minimal unit (ETH and wei).
const Decimals = 18

// ParsePrice validates a decimal currency string. Negative amounts and
// amounts finer than one minimal unit are rejected.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", status.ErrInvalidPrice)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", status.ErrInvalidPrice, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", status.ErrInvalidPrice, s)
	}
	if !d.Shift(Decimals).IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d decimals", status.ErrInvalidPrice, s, Decimals)
	}
	return d, nil
}

// ToMinimalUnits converts "0.75" into 750000000000000000.
func ToMinimalUnits(s string) (*big.Int, error) {
	d, err := ParsePrice(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(Decimals).BigInt(), nil
}

// FromMinimalUnits formats an integer amount the way ethers' formatEther
// does: at least one fractional digit, trailing zeros trimmed ("1.0", "0.75").
func FromMinimalUnits(v *big.Int) string {
	if v == nil {
		return "0.0"
	}
	s := decimal.NewFromBigInt(v, -Decimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// SamePrice compares two decimal strings by value ("1" equals "1.0").
func SamePrice(a, b string) bool {
	da, errA := ParsePrice(a)
	db, errB := ParsePrice(b)
	if errA != nil || errB != nil {
		return false
	}
	return da.Equal(db)
}
