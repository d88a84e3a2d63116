package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string

	// InterestRate is the system-wide loan interest rate, in percent.
	// RateSource selects where the origination rate comes from: "static"
	// uses InterestRate as-is, "cbr" fetches the central-bank key rate and
	// adds RateMargin on top.
	InterestRate decimal.Decimal
	RateSource   string
	CBRURL       string
	RateMargin   decimal.Decimal

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// ReminderSchedule is a cron expression for the due-reminder job.
	ReminderSchedule string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	// A missing .env file is fine, the environment still applies.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBConn:           getEnv("DB_CONN", "host=localhost port=5432 user=loan password=loan dbname=loanledger sslmode=disable"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		RateSource:       getEnv("RATE_SOURCE", "static"),
		CBRURL:           getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@loanledger.local"),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "0 9 * * *"),
	}

	var err error
	if cfg.InterestRate, err = decimal.NewFromString(getEnv("INTEREST_RATE", "5")); err != nil {
		return nil, fmt.Errorf("invalid INTEREST_RATE: %w", err)
	}
	if cfg.RateMargin, err = decimal.NewFromString(getEnv("RATE_MARGIN", "5")); err != nil {
		return nil, fmt.Errorf("invalid RATE_MARGIN: %w", err)
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RateSource != "static" && cfg.RateSource != "cbr" {
		return nil, fmt.Errorf("RATE_SOURCE must be \"static\" or \"cbr\", got %q", cfg.RateSource)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
