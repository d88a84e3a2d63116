package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repayment represents a single accepted repayment against a loan.
// Rows are append-only. AmountRemaining is the balance left on the loan
// after this payment was applied.
type Repayment struct {
	ID              int64           `json:"id"`
	LoanID          int64           `json:"loan_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
