package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kavishgr/loanledger/internal/config"
	"github.com/kavishgr/loanledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// otherCharges is the flat fee added to every loan at origination.
var otherCharges = decimal.NewFromInt(250)

// Store is the persistence surface the service depends on. Implemented by
// repository.Repository (Postgres) and repository.Memory (tests).
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateLoan(ctx context.Context, loan *models.Loan) error
	FindLoanByID(ctx context.Context, id int64) (*models.Loan, error)
	HasOutstandingLoan(ctx context.Context, userID int64) (bool, error)
	ApplyRepayment(ctx context.Context, loanID int64, amount decimal.Decimal) (*models.Repayment, decimal.Decimal, error)
	OutstandingLoans(ctx context.Context) ([]models.DueLoan, error)
}

// RateSource supplies the interest rate applied at origination.
type RateSource interface {
	InterestRate() (decimal.Decimal, error)
}

// Mailer sends borrower-facing notifications.
type Mailer interface {
	SendDueReminder(to, name string, loanID int64, remaining decimal.Decimal) error
}

// Service handles business logic
type Service struct {
	store  Store
	log    *logrus.Logger
	config *config.Config
	rates  RateSource
	mailer Mailer
}

// NewService initializes a new service. rates and mailer may be nil; the
// configured static interest rate is used and reminders are skipped.
func NewService(store Store, log *logrus.Logger, cfg *config.Config, rates RateSource, mailer Mailer) *Service {
	return &Service{store: store, log: log, config: cfg, rates: rates, mailer: mailer}
}

// Signup registers a new user and returns a session token
func (s *Service) Signup(ctx context.Context, name, email, password string) (string, error) {
	var verrs models.ValidationErrors
	if name == "" {
		verrs = append(verrs, models.FieldError{Key: "name", Message: "The name field is required."})
	}
	switch {
	case email == "":
		verrs = append(verrs, models.FieldError{Key: "email", Message: "The email field is required."})
	case !emailPattern.MatchString(email):
		verrs = append(verrs, models.FieldError{Key: "email", Message: "The email must be a valid email address."})
	}
	switch {
	case password == "":
		verrs = append(verrs, models.FieldError{Key: "password", Message: "The password field is required."})
	case len(password) < 6:
		verrs = append(verrs, models.FieldError{Key: "password", Message: "The password must be at least 6 characters."})
	}

	if len(verrs) == 0 {
		_, err := s.store.FindUserByEmail(ctx, email)
		switch {
		case err == nil:
			verrs = append(verrs, models.FieldError{Key: "email", Message: "The email has already been taken."})
		case !errors.Is(err, models.ErrUserNotFound):
			return "", err
		}
	}
	if len(verrs) > 0 {
		return "", verrs
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return "", models.ValidationErrors{{Key: "email", Message: "The email has already been taken."}}
		}
		return "", err
	}

	s.log.Infof("User registered: %s", user.Email)
	return s.issueToken(user.ID)
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	var verrs models.ValidationErrors
	switch {
	case email == "":
		verrs = append(verrs, models.FieldError{Key: "email", Message: "The email field is required."})
	case !emailPattern.MatchString(email):
		verrs = append(verrs, models.FieldError{Key: "email", Message: "The email must be a valid email address."})
	}
	if password == "" {
		verrs = append(verrs, models.FieldError{Key: "password", Message: "The password field is required."})
	}

	var user *models.User
	if len(verrs) == 0 {
		var err error
		user, err = s.store.FindUserByEmail(ctx, email)
		switch {
		case errors.Is(err, models.ErrUserNotFound):
			verrs = append(verrs, models.FieldError{Key: "email", Message: "The selected email is invalid."})
		case err != nil:
			return "", err
		}
	}
	if len(verrs) > 0 {
		return "", verrs
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	s.log.Infof("User logged in: %s", user.Email)
	return s.issueToken(user.ID)
}

// ApplyForLoan validates a loan application and originates the loan. The
// payment schedule of record (interest, charges, total payable) is computed
// once here and never recomputed.
func (s *Service) ApplyForLoan(ctx context.Context, amount, duration any) (*models.Loan, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var verrs models.ValidationErrors
	amt, verrs := validateNumericField(verrs, "amount", amount,
		decimal.NewFromInt(100), "Requested loan amount must exceed $99.")
	dur, verrs := validateNumericField(verrs, "duration", duration,
		decimal.NewFromInt(12), "Requested loan duration must exceed 11 Weeks.")

	if len(verrs) == 0 {
		outstanding, err := s.store.HasOutstandingLoan(ctx, userID)
		if err != nil {
			return nil, err
		}
		if outstanding {
			verrs = append(verrs, models.FieldError{
				Key:     "loan_dues",
				Message: "Please clear your existing dues to apply for next loan.",
			})
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	rate := s.interestRate()
	interest := amt.Mul(dur).Mul(rate).Div(decimal.NewFromInt(100))
	loan := &models.Loan{
		UserID:             userID,
		Amount:             amt,
		Duration:           int(dur.IntPart()),
		InterestRate:       rate,
		CalculatedInterest: interest,
		OtherCharges:       otherCharges,
		TotalAmount:        amt.Add(interest).Add(otherCharges),
		TotalAmountPaid:    decimal.Zero,
		Status:             true,
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.log.Infof("Loan %d originated for user %d: total payable %s", loan.ID, userID, loan.TotalAmount)
	return loan, nil
}

// Repay validates and records a repayment against a loan, returning the
// created repayment and the new remaining balance.
func (s *Service) Repay(ctx context.Context, loanID int64, amount any) (*models.Repayment, decimal.Decimal, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}

	loan, err := s.store.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if loan.UserID != userID {
		// Do not leak other users' loans.
		return nil, decimal.Zero, models.ErrLoanNotFound
	}

	var verrs models.ValidationErrors
	var amt decimal.Decimal
	switch {
	case !present(amount):
		verrs = append(verrs, models.FieldError{Key: "amount", Message: "The amount field is required."})
	default:
		var ok bool
		if amt, ok = toDecimal(amount); !ok {
			verrs = append(verrs, models.FieldError{Key: "amount", Message: "The amount must be a number."})
		} else if !amt.IsPositive() {
			verrs = append(verrs, models.FieldError{Key: "amount", Message: "The amount must be greater than 0."})
		}
	}

	if len(verrs) == 0 && !loan.Status {
		verrs = append(verrs, models.FieldError{
			Key:     "loan_dues",
			Message: "This loan has already been paid in full.",
		})
	}
	if len(verrs) > 0 {
		return nil, decimal.Zero, verrs
	}

	repayment, remaining, err := s.store.ApplyRepayment(ctx, loanID, amt)
	if errors.Is(err, models.ErrLoanAlreadyPaid) {
		// The loan closed between the read above and the locked write.
		return nil, decimal.Zero, models.ValidationErrors{{
			Key:     "loan_dues",
			Message: "This loan has already been paid in full.",
		}}
	}
	if err != nil {
		return nil, decimal.Zero, err
	}

	s.log.Infof("Repayment %d of %s applied to loan %d, remaining %s", repayment.ID, amt, loanID, remaining)
	return repayment, remaining, nil
}

// SendDueReminders emails every owner of an outstanding loan their current
// remaining balance. Failures are logged per recipient, never fatal.
func (s *Service) SendDueReminders(ctx context.Context) {
	if s.mailer == nil {
		return
	}
	dues, err := s.store.OutstandingLoans(ctx)
	if err != nil {
		s.log.Errorf("Failed to list outstanding loans: %v", err)
		return
	}
	sent := 0
	for _, d := range dues {
		if err := s.mailer.SendDueReminder(d.Email, d.Name, d.LoanID, d.Remaining); err != nil {
			s.log.Errorf("Failed to send due reminder for loan %d: %v", d.LoanID, err)
			continue
		}
		sent++
	}
	s.log.Infof("Due reminders sent: %d of %d", sent, len(dues))
}

// interestRate resolves the origination rate, preferring the configured
// external source and falling back to the static configured rate.
func (s *Service) interestRate() decimal.Decimal {
	if s.rates == nil {
		return s.config.InterestRate
	}
	rate, err := s.rates.InterestRate()
	if err != nil {
		s.log.Warnf("Rate source unavailable, using configured rate: %v", err)
		return s.config.InterestRate
	}
	return rate
}

func (s *Service) issueToken(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

func userIDFromContext(ctx context.Context) (int64, error) {
	userIDStr, ok := ctx.Value("userID").(string)
	if !ok || userIDStr == "" {
		return 0, models.ErrUnauthenticated
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, models.ErrUnauthenticated
	}
	return userID, nil
}
