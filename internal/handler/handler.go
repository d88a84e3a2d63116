package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kavishgr/loanledger/internal/config"
	"github.com/kavishgr/loanledger/internal/middleware"
	"github.com/kavishgr/loanledger/internal/models"
	"github.com/kavishgr/loanledger/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes builds the API router: public signup/login, JWT-protected loan routes.
func (h *Handler) Routes(cfg *config.Config) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/signup", h.Signup).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")

	authRouter := r.PathPrefix("/loan").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/apply", h.ApplyForLoan).Methods("POST")
	authRouter.HandleFunc("/{loanId}/repay", h.Repay).Methods("POST")
	return r
}

// Signup handles user registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := h.svc.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(w, err, http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"message": "Account created successfully!",
		"token":   token,
	})
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err, http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"message": "Logged in successfully!",
		"token":   token,
	})
}

// ApplyForLoan handles loan applications
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   any `json:"amount"`
		Duration any `json:"duration"`
	}
	if !decode(w, r, &req) {
		return
	}

	if _, err := h.svc.ApplyForLoan(r.Context(), req.Amount, req.Duration); err != nil {
		h.fail(w, err, http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"message": "Loan has been applied successfully!",
	})
}

// Repay handles repayments against a loan
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(mux.Vars(r)["loanId"], 10, 64)
	if err != nil {
		h.fail(w, models.ErrLoanNotFound, http.StatusInternalServerError)
		return
	}

	var req struct {
		Amount any `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	_, remaining, err := h.svc.Repay(r.Context(), loanID, req.Amount)
	if err != nil {
		// Persistence failures here mean a rolled-back transaction.
		h.fail(w, err, http.StatusExpectationFailed)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"message": "Repayment made successfully!",
		// As a json.Number the balance serializes as a bare number.
		"remaining": json.Number(remaining.String()),
	})
}

// decode reads a JSON request body. An empty body is allowed so that
// required-field validation reports the missing fields itself.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		respondErrors(w, http.StatusBadRequest, models.ValidationErrors{{
			Key:     "request",
			Message: "The request body must be valid JSON.",
		}})
		return false
	}
	return true
}

// fail converts domain errors to the structured error envelope.
func (h *Handler) fail(w http.ResponseWriter, err error, fallback int) {
	var verrs models.ValidationErrors
	var excess *models.ExcessAmountError
	switch {
	case errors.As(err, &verrs):
		respondErrors(w, http.StatusForbidden, verrs)
	case errors.As(err, &excess):
		respondErrors(w, http.StatusBadRequest, models.ValidationErrors{{
			Key:     "amount",
			Message: excess.Error(),
		}})
	case errors.Is(err, models.ErrInvalidCredentials):
		respondErrors(w, http.StatusNotFound, models.ValidationErrors{{
			Key:     "message",
			Message: "These credentials do not match our records.",
		}})
	case errors.Is(err, models.ErrLoanNotFound):
		respondErrors(w, http.StatusNotFound, models.ValidationErrors{{
			Key:     "loan",
			Message: "Loan not found.",
		}})
	case errors.Is(err, models.ErrUnauthenticated):
		middleware.Unauthenticated(w)
	default:
		respondErrors(w, fallback, models.ValidationErrors{{
			Key:     "server",
			Message: "The request could not be completed. Please try again.",
		}})
	}
}
