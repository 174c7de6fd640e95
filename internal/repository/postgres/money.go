package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyScale matches the NUMERIC(18,2) money columns.
const moneyScale = 2

func numericStringToDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func decimalToNumericString(d decimal.Decimal) string {
	return d.StringFixed(moneyScale)
}
