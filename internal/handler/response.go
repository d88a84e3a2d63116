package handler

import (
	"encoding/json"
	"net/http"

	"github.com/kavishgr/loanledger/internal/models"
)

// meta is attached to every enveloped response.
type meta struct {
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code"`
	CurrentPage int    `json:"current_page"`
	TotalPage   int    `json:"total_page"`
}

type successResponse struct {
	Data any  `json:"data"`
	Meta meta `json:"meta"`
}

type failureResponse struct {
	Error []models.FieldError `json:"error"`
	Meta  meta                `json:"meta"`
}

func respond(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(successResponse{
		Data: data,
		Meta: meta{Status: "SUCCESS", StatusCode: code, CurrentPage: 1, TotalPage: 1},
	})
}

func respondErrors(w http.ResponseWriter, code int, errs models.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(failureResponse{
		Error: errs,
		Meta:  meta{Status: "FAILED", StatusCode: code, CurrentPage: 1, TotalPage: 1},
	})
}
