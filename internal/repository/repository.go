package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kavishgr/loanledger/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, user.Name, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return models.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// CreateLoan creates a new loan in the database
func (r *Repository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO loans (user_id, amount, duration, interest_rate, calculated_interest,
			other_charges, total_amount, total_amount_paid, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		loan.UserID, loan.Amount, loan.Duration, loan.InterestRate, loan.CalculatedInterest,
		loan.OtherCharges, loan.TotalAmount, loan.TotalAmountPaid, loan.Status).
		Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// FindLoanByID retrieves a loan by id
func (r *Repository) FindLoanByID(ctx context.Context, id int64) (*models.Loan, error) {
	loan := &models.Loan{}
	query := `
		SELECT id, user_id, amount, duration, interest_rate, calculated_interest,
			other_charges, total_amount, total_amount_paid, status, created_at, updated_at
		FROM loans
		WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&loan.ID, &loan.UserID, &loan.Amount, &loan.Duration, &loan.InterestRate,
			&loan.CalculatedInterest, &loan.OtherCharges, &loan.TotalAmount,
			&loan.TotalAmountPaid, &loan.Status, &loan.CreatedAt, &loan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return loan, nil
}

// HasOutstandingLoan reports whether the user currently has an open loan
func (r *Repository) HasOutstandingLoan(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM loans WHERE user_id = $1 AND status = TRUE)`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check outstanding loans: %w", err)
	}
	return exists, nil
}

// ApplyRepayment applies a repayment to a loan inside a single transaction.
// The loan row is locked for the duration of the transaction so concurrent
// repayments against the same loan serialize; the balance check runs under
// that lock. Returns the created repayment and the new remaining balance.
func (r *Repository) ApplyRepayment(ctx context.Context, loanID int64, amount decimal.Decimal) (*models.Repayment, decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		totalAmount decimal.Decimal
		totalPaid   decimal.Decimal
		status      bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT total_amount, total_amount_paid, status
		FROM loans
		WHERE id = $1
		FOR UPDATE`, loanID).
		Scan(&totalAmount, &totalPaid, &status)
	if err == sql.ErrNoRows {
		return nil, decimal.Zero, models.ErrLoanNotFound
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to lock loan: %w", err)
	}

	if !status {
		return nil, decimal.Zero, models.ErrLoanAlreadyPaid
	}

	remaining := totalAmount.Sub(totalPaid)
	if amount.GreaterThan(remaining) {
		return nil, decimal.Zero, &models.ExcessAmountError{Remaining: remaining}
	}

	newPaid := totalPaid.Add(amount)
	amountRemaining := totalAmount.Sub(newPaid)
	closed := amount.Equal(remaining)

	repayment := &models.Repayment{
		LoanID:          loanID,
		Amount:          amount,
		AmountRemaining: amountRemaining,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO repayments (loan_id, amount, amount_remaining, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`,
		repayment.LoanID, repayment.Amount, repayment.AmountRemaining).
		Scan(&repayment.ID, &repayment.CreatedAt, &repayment.UpdatedAt)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to create repayment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE loans
		SET total_amount_paid = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`, newPaid, !closed, loanID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to update loan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to commit repayment: %w", err)
	}
	return repayment, amountRemaining, nil
}

// OutstandingLoans lists open loans joined with their owners, for reminders
func (r *Repository) OutstandingLoans(ctx context.Context) ([]models.DueLoan, error) {
	query := `
		SELECT l.id, u.name, u.email, l.total_amount - l.total_amount_paid
		FROM loans l
		JOIN users u ON u.id = l.user_id
		WHERE l.status = TRUE`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding loans: %w", err)
	}
	defer rows.Close()

	var dues []models.DueLoan
	for rows.Next() {
		var d models.DueLoan
		if err := rows.Scan(&d.LoanID, &d.Name, &d.Email, &d.Remaining); err != nil {
			return nil, fmt.Errorf("failed to scan outstanding loan: %w", err)
		}
		dues = append(dues, d)
	}
	return dues, rows.Err()
}
