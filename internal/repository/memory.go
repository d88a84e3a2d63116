package repository

import (
	"context"
	"sync"
	"time"

	"github.com/kavishgr/loanledger/internal/models"
	"github.com/shopspring/decimal"
)

// Memory is an in-memory store with the same semantics as Repository,
// including serialized repayments per loan. It backs the test suite and
// needs no database.
type Memory struct {
	mu         sync.Mutex
	users      map[int64]*models.User
	emailIndex map[string]int64
	loans      map[int64]*models.Loan
	repayments map[int64][]models.Repayment
	nextUser   int64
	nextLoan   int64
	nextRepay  int64
}

// NewMemory initializes an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[int64]*models.User),
		emailIndex: make(map[string]int64),
		loans:      make(map[int64]*models.Loan),
		repayments: make(map[int64][]models.Repayment),
	}
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emailIndex[user.Email]; exists {
		return models.ErrEmailTaken
	}
	m.nextUser++
	user.ID = m.nextUser
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.emailIndex[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLoan++
	loan.ID = m.nextLoan
	loan.CreatedAt = time.Now()
	loan.UpdatedAt = loan.CreatedAt
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *Memory) FindLoanByID(_ context.Context, id int64) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.loans[id]
	if !ok {
		return nil, models.ErrLoanNotFound
	}
	cp := *loan
	return &cp, nil
}

func (m *Memory) HasOutstandingLoan(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, loan := range m.loans {
		if loan.UserID == userID && loan.Status {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ApplyRepayment(_ context.Context, loanID int64, amount decimal.Decimal) (*models.Repayment, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.loans[loanID]
	if !ok {
		return nil, decimal.Zero, models.ErrLoanNotFound
	}
	if !loan.Status {
		return nil, decimal.Zero, models.ErrLoanAlreadyPaid
	}

	remaining := loan.TotalAmount.Sub(loan.TotalAmountPaid)
	if amount.GreaterThan(remaining) {
		return nil, decimal.Zero, &models.ExcessAmountError{Remaining: remaining}
	}

	newPaid := loan.TotalAmountPaid.Add(amount)
	amountRemaining := loan.TotalAmount.Sub(newPaid)

	m.nextRepay++
	now := time.Now()
	repayment := models.Repayment{
		ID:              m.nextRepay,
		LoanID:          loanID,
		Amount:          amount,
		AmountRemaining: amountRemaining,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.repayments[loanID] = append(m.repayments[loanID], repayment)

	loan.TotalAmountPaid = newPaid
	if amount.Equal(remaining) {
		loan.Status = false
	}
	loan.UpdatedAt = now

	cp := repayment
	return &cp, amountRemaining, nil
}

func (m *Memory) OutstandingLoans(_ context.Context) ([]models.DueLoan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dues []models.DueLoan
	for _, loan := range m.loans {
		if !loan.Status {
			continue
		}
		owner := m.users[loan.UserID]
		if owner == nil {
			continue
		}
		dues = append(dues, models.DueLoan{
			LoanID:    loan.ID,
			Name:      owner.Name,
			Email:     owner.Email,
			Remaining: loan.TotalAmount.Sub(loan.TotalAmountPaid),
		})
	}
	return dues, nil
}

// Repayments returns the recorded repayments for a loan, oldest first.
func (m *Memory) Repayments(loanID int64) []models.Repayment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Repayment, len(m.repayments[loanID]))
	copy(out, m.repayments[loanID])
	return out
}
