package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan represents a loan in the system. TotalAmount is fixed at origination;
// only TotalAmountPaid and Status change afterwards, and only through the
// repayment ledger.
type Loan struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	Duration           int             `json:"duration"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	CalculatedInterest decimal.Decimal `json:"calculated_interest"`
	OtherCharges       decimal.Decimal `json:"other_charges"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalAmountPaid    decimal.Decimal `json:"total_amount_paid"`
	Status             bool            `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RemainingAmount returns the live outstanding balance.
func (l *Loan) RemainingAmount() decimal.Decimal {
	return l.TotalAmount.Sub(l.TotalAmountPaid)
}

// DueLoan is an outstanding loan joined with its owner's contact details,
// used by the due-reminder job.
type DueLoan struct {
	LoanID    int64
	Name      string
	Email     string
	Remaining decimal.Decimal
}
