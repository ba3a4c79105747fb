package model

import (
	"fmt"
	"math"
	"strconv"
)

// Money is an amount in integer cents. It is serialized as a decimal
// number with two fraction digits ("18.50").
type Money int64

// MoneyFromFloat converts a decimal amount, rounding half away from zero
// to the nearest cent.
func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

// Float returns m in currency units, for display and logging only.
func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	c := int64(m)
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON encodes m as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number in currency units.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("money: %q is not a number", data)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt64/100 {
		return fmt.Errorf("money: %q out of range", data)
	}
	*m = MoneyFromFloat(v)
	return nil
}
