package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/shobdo/internal/app"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/types"
)

// ReferralDependencies defines the referral ledger operations.
type ReferralDependencies interface {
	RegisterReferral(ctx context.Context, referrer, referred string) (referral.RegisterOutcome, error)
	Balance(ctx context.Context, referrer string) (referral.Balance, error)
	ReferralHistory(ctx context.Context, referrer string) (types.ReferralHistory, error)
	Pay(ctx context.Context, referrer string, amount int64, requestID string) (service.PayReceipt, error)
}

// ReferralsHandler handles referral registration, balances and payouts.
type ReferralsHandler struct {
	deps ReferralDependencies
}

// NewReferralsHandler creates a new referrals handler.
func NewReferralsHandler(deps ReferralDependencies) *ReferralsHandler {
	return &ReferralsHandler{deps: deps}
}

type referralRequest struct {
	ReferrerMSISDN string `json:"referrer_msisdn"`
	ReferredMSISDN string `json:"referred_msisdn"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleSave handles POST /save-referral requests.
func (h *ReferralsHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_referral"
	var req referralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.ReferrerMSISDN) == "" || strings.TrimSpace(req.ReferredMSISDN) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing required fields")))
		return
	}

	out, err := h.deps.RegisterReferral(r.Context(), req.ReferrerMSISDN, req.ReferredMSISDN)
	if err != nil {
		respondError(w, op, err)
		return
	}
	switch out {
	case referral.Registered:
		writeJSON(w, http.StatusOK, statusResponse{Status: out.String(), Message: "Referral saved successfully!"})
	case referral.SelfReferral:
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: out.String(), Message: "Self-referral not allowed"})
	case referral.AlreadyReferred:
		writeJSON(w, http.StatusConflict, errorResponse{Code: out.String(), Message: "Referral already exists for this user"})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// HandleBalance handles GET /referrals/{msisdn}/balance requests.
func (h *ReferralsHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	const op = "api.referral_balance"
	msisdn := strings.TrimSpace(chi.URLParam(r, "msisdn"))
	b, err := h.deps.Balance(r.Context(), msisdn)
	if err != nil {
		respondError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(msisdn, b))
}

// HandleHistory handles GET /referrals/{msisdn} requests.
func (h *ReferralsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.deps.ReferralHistory(r.Context(), chi.URLParam(r, "msisdn"))
	if err != nil {
		respondError(w, "api.referral_history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type payRequest struct {
	Amount    *int64 `json:"amount"`
	RequestID string `json:"request_id"`
}

type payResponse struct {
	Status  string         `json:"status"`
	Payment *types.Payment `json:"payment,omitempty"`
	Balance *types.Balance `json:"balance,omitempty"`
}

// HandlePay handles POST /referrals/{msisdn}/payments requests.
func (h *ReferralsHandler) HandlePay(w http.ResponseWriter, r *http.Request) {
	const op = "api.referral_pay"
	msisdn := strings.TrimSpace(chi.URLParam(r, "msisdn"))
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing amount")))
		return
	}

	receipt, err := h.deps.Pay(r.Context(), msisdn, *req.Amount, req.RequestID)
	if err != nil {
		respondError(w, op, err)
		return
	}

	resp := payResponse{Status: receipt.Outcome.String()}
	if receipt.Payment != nil {
		p := service.ToPayment(receipt.Payment)
		resp.Payment = &p
	}
	if receipt.Outcome != 0 {
		b := toBalance(msisdn, receipt.Balance)
		resp.Balance = &b
	}

	switch {
	case receipt.Duplicate:
		resp.Status = "duplicate"
		writeJSON(w, http.StatusOK, resp)
	case receipt.Outcome == referral.Paid:
		writeJSON(w, http.StatusCreated, resp)
	case receipt.Outcome == referral.InvalidAmount:
		writeError(w, http.StatusBadRequest, receipt.Outcome.String(), errors.New("amount must be positive"))
	case receipt.Outcome == referral.InsufficientBalance:
		writeError(w, http.StatusConflict, receipt.Outcome.String(), WrapKind(op, ErrConflict,
			fmt.Errorf("amount %d exceeds pending balance %d", *req.Amount, receipt.Balance.Pending)))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func toBalance(msisdn string, b referral.Balance) types.Balance {
	return types.Balance{
		MSISDN:    msisdn,
		Referrals: b.Referrals,
		Earned:    b.Earned,
		Paid:      b.Paid,
		Pending:   b.Pending,
	}
}
