package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUserNotFound is returned when no user matches the given email or id.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoanNotFound is returned when no loan matches the given id, or the
	// loan does not belong to the acting user.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanAlreadyPaid is returned when a repayment targets a closed loan.
	ErrLoanAlreadyPaid = errors.New("loan already paid in full")

	// ErrUnauthenticated is returned when no user id is present in the
	// request context.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// FieldError is a single violated rule, keyed for machine consumption.
type FieldError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ValidationErrors collects every violated rule for one request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Key, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ExcessAmountError rejects a repayment larger than the outstanding balance.
// The request is rejected wholesale, never capped.
type ExcessAmountError struct {
	Remaining decimal.Decimal
}

func (e *ExcessAmountError) Error() string {
	return fmt.Sprintf("You have only %s as dues. Reattempt with exact remaining amount.", e.Remaining)
}
