package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/treasury-vesting/internal/console/service"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"go.uber.org/zap"
)

// LedgerService Описываем, что нам нужно от сервиса
type LedgerService interface {
	AddVesting(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error)
	Release(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	Vesting(ctx context.Context, id uint64) domain.VestingEntry

	AddVestingRequest(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error)
	ApproveVestingRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	StartVesting(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	VestingRequest(ctx context.Context, id uint64) domain.VestingRequest

	AddWithdrawRequest(ctx context.Context, caller domain.Address, amount uint64) (*domain.Receipt, error)
	ApproveWithdrawRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	ProcessApprovedRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)
	WithdrawRequest(ctx context.Context, id uint64) domain.WithdrawRequest

	Escrow(ctx context.Context) (*service.EscrowInfo, error)
	Transfer(ctx context.Context, from, to domain.Address, amount uint64) error
	BalanceOf(ctx context.Context, who domain.Address) (uint64, error)
}

type LedgerHandler struct {
	service LedgerService
	logger  *zap.Logger
}

func NewLedgerHandler(s LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{service: s, logger: logger.Named("ledger-handler")}
}

// Routes Маршруты для Chi (монтируются под /v1)
func (h *LedgerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/vestings", func(r chi.Router) {
		r.Post("/", h.AddVesting)
		r.Get("/{id}", h.GetVesting)
		r.Post("/{id}/release", h.byID(h.service.Release))
	})

	r.Route("/vesting-requests", func(r chi.Router) {
		r.Post("/", h.AddVestingRequest)
		r.Get("/{id}", h.GetVestingRequest)
		r.Post("/{id}/approve", h.byID(h.service.ApproveVestingRequest))
		r.Post("/{id}/start", h.byID(h.service.StartVesting))
	})

	r.Route("/withdraw-requests", func(r chi.Router) {
		r.Post("/", h.AddWithdrawRequest)
		r.Get("/{id}", h.GetWithdrawRequest)
		r.Post("/{id}/approve", h.byID(h.service.ApproveWithdrawRequest))
		r.Post("/{id}/process", h.byID(h.service.ProcessApprovedRequest))
	})

	r.Get("/escrow", h.GetEscrow)
	r.Post("/token/transfer", h.Transfer)
	r.Get("/token/balances/{address}", h.GetBalance)
	return r
}

type VestingBody struct {
	Beneficiary string `json:"beneficiary"`
	ReleaseTime *int64 `json:"release_time"` // обязательное: отсутствие не должно означать "уже можно"
	Amount      uint64 `json:"amount"`
}

type WithdrawBody struct {
	Amount uint64 `json:"amount"`
}

type TransferBody struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func (h *LedgerHandler) AddVesting(w http.ResponseWriter, r *http.Request) {
	h.createVesting(w, r, h.service.AddVesting)
}

func (h *LedgerHandler) AddVestingRequest(w http.ResponseWriter, r *http.Request) {
	h.createVesting(w, r, h.service.AddVestingRequest)
}

type createFunc func(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error)

func (h *LedgerHandler) createVesting(w http.ResponseWriter, r *http.Request, create createFunc) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body VestingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	beneficiary := domain.ParseAddress(body.Beneficiary)
	if beneficiary.IsZero() {
		http.Error(w, "beneficiary is required", http.StatusBadRequest)
		return
	}

	if body.ReleaseTime == nil || *body.ReleaseTime < 0 {
		http.Error(w, "release_time is required and must be non-negative", http.StatusBadRequest)
		return
	}

	receipt, err := create(r.Context(), caller, beneficiary, *body.ReleaseTime, body.Amount)
	h.writeReceipt(w, r, receipt, err)
}

func (h *LedgerHandler) AddWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body WithdrawBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := h.service.AddWithdrawRequest(r.Context(), caller, body.Amount)
	h.writeReceipt(w, r, receipt, err)
}

// byID: общий обработчик для операций вида POST /{id}/action.
func (h *LedgerHandler) byID(op func(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFrom(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		receipt, err := op(r.Context(), caller, id)
		h.writeReceipt(w, r, receipt, err)
	}
}

func (h *LedgerHandler) writeReceipt(w http.ResponseWriter, r *http.Request, receipt *domain.Receipt, err error) {
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("ledger operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *LedgerHandler) GetVesting(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseID(w, r); ok {
		writeJSON(w, http.StatusOK, h.service.Vesting(r.Context(), id))
	}
}

func (h *LedgerHandler) GetVestingRequest(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseID(w, r); ok {
		writeJSON(w, http.StatusOK, h.service.VestingRequest(r.Context(), id))
	}
}

func (h *LedgerHandler) GetWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseID(w, r); ok {
		writeJSON(w, http.StatusOK, h.service.WithdrawRequest(r.Context(), id))
	}
}

func (h *LedgerHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Escrow(r.Context())
	if err != nil {
		h.logger.Error("escrow query failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body TransferBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	to := domain.ParseAddress(body.To)
	if to.IsZero() {
		http.Error(w, "recipient is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Transfer(r.Context(), caller, to, body.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	who := domain.ParseAddress(chi.URLParam(r, "address"))
	bal, err := h.service.BalanceOf(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": who, "balance": bal})
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "id must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
