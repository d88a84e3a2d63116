package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/kavishgr/loanledger/internal/config"
	"github.com/kavishgr/loanledger/internal/handler"
	"github.com/kavishgr/loanledger/internal/integrations/cbr"
	"github.com/kavishgr/loanledger/internal/repository"
	"github.com/kavishgr/loanledger/internal/service"
	"github.com/kavishgr/loanledger/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)

	var rates service.RateSource
	if cfg.RateSource == "cbr" {
		rates = cbr.NewKeyRateSource(cfg, logger)
	}
	var mailer service.Mailer
	if cfg.SMTPHost != "" {
		mailer = email.NewSender(cfg, logger)
	}

	svc := service.NewService(repo, logger, cfg, rates, mailer)
	h := handler.NewHandler(svc)
	r := h.Routes(cfg)

	// Schedule due reminders when mail is configured
	if mailer != nil {
		c := cron.New()
		if _, err := c.AddFunc(cfg.ReminderSchedule, func() {
			svc.SendDueReminders(context.Background())
		}); err != nil {
			logger.Fatalf("Failed to schedule due reminders: %v", err)
		}
		c.Start()
		logger.Infof("Due-reminder job scheduled: %s", cfg.ReminderSchedule)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
