package service

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/kavishgr/loanledger/internal/models"
	"github.com/shopspring/decimal"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// present reports whether a request field was supplied with a value.
// nil and the empty string both count as missing.
func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

// toDecimal converts a JSON request value to a decimal. Numbers and numeric
// strings are both accepted; request bodies are decoded with UseNumber so
// precision survives the round trip.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

// validateNumericField runs the structural rules for a required numeric
// field with a minimum: required, numeric, min. Exactly one error is
// reported per field.
func validateNumericField(verrs models.ValidationErrors, key string, v any, min decimal.Decimal, minMessage string) (decimal.Decimal, models.ValidationErrors) {
	if !present(v) {
		return decimal.Zero, append(verrs, models.FieldError{
			Key:     key,
			Message: fmt.Sprintf("The %s field is required.", key),
		})
	}
	d, ok := toDecimal(v)
	if !ok {
		return decimal.Zero, append(verrs, models.FieldError{
			Key:     key,
			Message: fmt.Sprintf("The %s must be a number.", key),
		})
	}
	if d.LessThan(min) {
		return decimal.Zero, append(verrs, models.FieldError{Key: key, Message: minMessage})
	}
	return d, verrs
}
