package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in whole currency units (rupiah). Receipt arithmetic
// stays in integers so long item lists never pick up float drift.
type Money int64

var moneyPrinter = message.NewPrinter(language.Indonesian)

// String formats m with Indonesian digit grouping, e.g. 15000 -> "15.000".
func (m Money) String() string {
	return moneyPrinter.Sprintf("%d", int64(m))
}

// ParseMoney parses a decimal amount such as "15000", "15000.00" or "1499.5".
// Fractions are rounded half away from zero.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("receipt: parse amount %q: %w", s, err)
	}
	return Money(d.Round(0).IntPart()), nil
}

// UnmarshalJSON accepts JSON numbers, quoted numbers and null. The backend
// stores amounts as floats; they are converted through a decimal so that
// 0.1-style representation error never reaches the integer value.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*m = 0
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
