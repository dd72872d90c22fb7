package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for every amount.
const MoneyScale = 2

// Money is a fixed-scale decimal amount. Every constructor and arithmetic
// operation rounds half-up (away from zero) to MoneyScale places.
type Money struct {
	amount decimal.Decimal
}

func NewMoney(amount int64) Money {
	return MoneyFromDecimal(decimal.NewFromInt(amount))
}

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{amount: d.Round(MoneyScale)}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return MoneyFromDecimal(d), nil
}

func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(other Money) Money {
	return MoneyFromDecimal(m.amount.Add(other.amount))
}

func (m Money) Sub(other Money) Money {
	return MoneyFromDecimal(m.amount.Sub(other.amount))
}

func (m Money) MulQuantity(quantity int) Money {
	return MoneyFromDecimal(m.amount.Mul(decimal.NewFromInt(int64(quantity))))
}

func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// String always renders MoneyScale decimals, e.g. "52499.00".
func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = MoneyFromDecimal(d)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	*m = MoneyFromDecimal(d)
	return nil
}
