package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
)

// StatusFor сопоставляет ошибку леджера HTTP-статусу.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrSelfApproval):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotYetApproved), errors.Is(err, domain.ErrNotYetReleasable):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrDuplicateApproval),
		errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrAlreadyReleased),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, escrow.ErrThrottled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
