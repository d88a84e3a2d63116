package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/kavishgr/loanledger/internal/config"
	"github.com/kavishgr/loanledger/internal/models"
	"github.com/kavishgr/loanledger/internal/repository"
	"github.com/kavishgr/loanledger/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data  map[string]any      `json:"data"`
	Error []models.FieldError `json:"error"`
	Meta  struct {
		Status      string `json:"status"`
		StatusCode  int    `json:"status_code"`
		CurrentPage int    `json:"current_page"`
		TotalPage   int    `json:"total_page"`
	} `json:"meta"`
}

func newTestAPI(t *testing.T) (*mux.Router, *repository.Memory) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		JWTSecret:    "test-secret",
		InterestRate: decimal.NewFromInt(5),
	}
	mem := repository.NewMemory()
	svc := service.NewService(mem, logger, cfg, nil, nil)
	return NewHandler(svc).Routes(cfg), mem
}

func httpDo(r *mux.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func signupToken(t *testing.T, r *mux.Router, name, email string) string {
	t.Helper()
	w := httpDo(r, "POST", "/signup", "", map[string]any{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	token, _ := env.Data["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSignup(t *testing.T) {
	r, _ := newTestAPI(t)

	w := httpDo(r, "POST", "/signup", "", map[string]any{
		"name": "Alice", "email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "SUCCESS", env.Meta.Status)
	require.Equal(t, http.StatusOK, env.Meta.StatusCode)
	require.Equal(t, "Account created successfully!", env.Data["message"])
	require.NotEmpty(t, env.Data["token"])

	// Duplicate email fails with field errors.
	w = httpDo(r, "POST", "/signup", "", map[string]any{
		"name": "Impostor", "email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, "FAILED", env.Meta.Status)
	require.Equal(t, "email", env.Error[0].Key)
	require.Equal(t, "The email has already been taken.", env.Error[0].Message)
}

func TestLogin(t *testing.T) {
	r, _ := newTestAPI(t)
	signupToken(t, r, "Alice", "alice@example.com")

	w := httpDo(r, "POST", "/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong-pass",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "message", env.Error[0].Key)
	require.Equal(t, "These credentials do not match our records.", env.Error[0].Message)

	w = httpDo(r, "POST", "/login", "", map[string]any{
		"email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, "Logged in successfully!", env.Data["message"])
	require.NotEmpty(t, env.Data["token"])
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r, _ := newTestAPI(t)

	for _, path := range []string{"/loan/apply", "/loan/1/repay"} {
		w := httpDo(r, "POST", path, "", map[string]any{"amount": 100})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.JSONEq(t, `{"message":"Unauthenticated."}`, w.Body.String())
	}

	w := httpDo(r, "POST", "/loan/apply", "not-a-valid-token", map[string]any{"amount": 100})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplyForLoan(t *testing.T) {
	r, mem := newTestAPI(t)
	token := signupToken(t, r, "Alice", "alice@example.com")

	w := httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": 1000, "duration": 20})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "Loan has been applied successfully!", env.Data["message"])

	loan, err := mem.FindLoanByID(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, loan.TotalAmount.Equal(decimal.NewFromInt(2250)))
	require.True(t, loan.Status)

	// A second application is blocked by the outstanding loan.
	w = httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": 500, "duration": 15})
	require.Equal(t, http.StatusForbidden, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, "loan_dues", env.Error[0].Key)
	require.Equal(t, "Please clear your existing dues to apply for next loan.", env.Error[0].Message)
}

func TestApplyForLoanValidationErrors(t *testing.T) {
	r, _ := newTestAPI(t)
	token := signupToken(t, r, "Alice", "alice@example.com")

	w := httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": "ten grand", "duration": 5})
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "FAILED", env.Meta.Status)
	require.Len(t, env.Error, 2)
	require.Equal(t, "amount", env.Error[0].Key)
	require.Equal(t, "The amount must be a number.", env.Error[0].Message)
	require.Equal(t, "duration", env.Error[1].Key)
	require.Equal(t, "Requested loan duration must exceed 11 Weeks.", env.Error[1].Message)
}

func TestRepayFlow(t *testing.T) {
	r, _ := newTestAPI(t)
	token := signupToken(t, r, "Alice", "alice@example.com")
	w := httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": 1000, "duration": 20})
	require.Equal(t, http.StatusOK, w.Code)

	// Excess amount is rejected wholesale with the live balance embedded.
	w = httpDo(r, "POST", "/loan/1/repay", token, map[string]any{"amount": 2300})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "amount", env.Error[0].Key)
	require.Equal(t, "You have only 2250 as dues. Reattempt with exact remaining amount.", env.Error[0].Message)

	// Partial repayment.
	w = httpDo(r, "POST", "/loan/1/repay", token, map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, "Repayment made successfully!", env.Data["message"])
	require.Equal(t, float64(1250), env.Data["remaining"])
	require.Contains(t, w.Body.String(), `"remaining":1250`)

	// Numeric strings are accepted and close the loan exactly.
	w = httpDo(r, "POST", "/loan/1/repay", token, map[string]any{"amount": "1250"})
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, float64(0), env.Data["remaining"])

	// The closed loan rejects further repayments.
	w = httpDo(r, "POST", "/loan/1/repay", token, map[string]any{"amount": 10})
	require.Equal(t, http.StatusForbidden, w.Code)
	env = decodeEnvelope(t, w)
	require.Equal(t, "loan_dues", env.Error[0].Key)
	require.Equal(t, "This loan has already been paid in full.", env.Error[0].Message)
}

func TestRepayMissingAmount(t *testing.T) {
	r, _ := newTestAPI(t)
	token := signupToken(t, r, "Alice", "alice@example.com")
	httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": 1000, "duration": 20})

	w := httpDo(r, "POST", "/loan/1/repay", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "amount", env.Error[0].Key)
	require.Equal(t, "The amount field is required.", env.Error[0].Message)
}

func TestRepayLoanNotFound(t *testing.T) {
	r, _ := newTestAPI(t)
	alice := signupToken(t, r, "Alice", "alice@example.com")
	bob := signupToken(t, r, "Bob", "bob@example.com")
	httpDo(r, "POST", "/loan/apply", alice, map[string]any{"amount": 1000, "duration": 20})

	// Unknown id, malformed id, and another user's loan all read as missing.
	for _, tc := range []struct {
		path  string
		token string
	}{
		{"/loan/42/repay", alice},
		{"/loan/abc/repay", alice},
		{"/loan/1/repay", bob},
	} {
		w := httpDo(r, "POST", tc.path, tc.token, map[string]any{"amount": 100})
		require.Equal(t, http.StatusNotFound, w.Code, "path %s", tc.path)
		env := decodeEnvelope(t, w)
		require.Equal(t, "loan", env.Error[0].Key)
		require.Equal(t, "Loan not found.", env.Error[0].Message)
	}
}

// brokenLedger fails every repayment write, as a rolled-back transaction would.
type brokenLedger struct {
	*repository.Memory
}

func (b *brokenLedger) ApplyRepayment(context.Context, int64, decimal.Decimal) (*models.Repayment, decimal.Decimal, error) {
	return nil, decimal.Zero, errors.New("commit failed")
}

func TestRepayTransactionFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		JWTSecret:    "test-secret",
		InterestRate: decimal.NewFromInt(5),
	}
	store := &brokenLedger{Memory: repository.NewMemory()}
	svc := service.NewService(store, logger, cfg, nil, nil)
	r := NewHandler(svc).Routes(cfg)

	token := signupToken(t, r, "Alice", "alice@example.com")
	w := httpDo(r, "POST", "/loan/apply", token, map[string]any{"amount": 1000, "duration": 20})
	require.Equal(t, http.StatusOK, w.Code)

	w = httpDo(r, "POST", "/loan/1/repay", token, map[string]any{"amount": 100})
	require.Equal(t, http.StatusExpectationFailed, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "FAILED", env.Meta.Status)
	require.Equal(t, http.StatusExpectationFailed, env.Meta.StatusCode)
	require.Equal(t, "server", env.Error[0].Key)
	require.Equal(t, "The request could not be completed. Please try again.", env.Error[0].Message)

	// The failed write left nothing behind.
	loan, err := store.FindLoanByID(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, loan.TotalAmountPaid.IsZero())
	require.Empty(t, store.Repayments(1))
}

func TestMalformedBody(t *testing.T) {
	r, _ := newTestAPI(t)
	token := signupToken(t, r, "Alice", "alice@example.com")

	req := httptest.NewRequest("POST", "/loan/apply", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.Equal(t, "request", env.Error[0].Key)
}
