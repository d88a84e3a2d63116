package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/kavishgr/loanledger/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendDueReminder emails a borrower the outstanding balance on their loan.
func (s *Sender) SendDueReminder(to, name string, loanID int64, remaining decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Outstanding Loan Balance Reminder"

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"This is a reminder that your loan #%d has an outstanding balance of %s.\n"+
			"You can repay any amount up to the remaining balance at any time.\n"+
			"\nBest regards,\nLoan Ledger",
		name, loanID, remaining,
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
