package money

import (
	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places amounts are stored with.
const Scale = 2

// Max is the largest amount a NUMERIC(18,2) column holds.
var Max = decimal.New(1, 16).Sub(decimal.New(1, -Scale))

// Validate checks that amount is positive, has at most Scale decimal places
// and fits the money columns.
func Validate(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.NewValidationError(field, "must be greater than 0")
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return errors.NewValidationError(field, "must have at most 2 decimal places")
	}
	if amount.GreaterThan(Max) {
		return errors.NewValidationError(field, "exceeds maximum of "+Max.StringFixed(Scale))
	}
	return nil
}
