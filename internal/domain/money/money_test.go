package money_test

import (
	"testing"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"two places", "15.99", false},
		{"trailing zeros", "15.000", false},
		{"integer", "42", false},
		{"smallest unit", "0.01", false},
		{"column maximum", "9999999999999999.99", false},
		{"zero", "0", true},
		{"negative", "-1.00", true},
		{"rounds to zero", "0.004", true},
		{"three places", "15.999", true},
		{"above column range", "1e17", true},
		{"just above maximum", "10000000000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := money.Validate("amount", decimal.RequireFromString(tt.amount))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "amount", ve.Field)
		})
	}
}
