package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds payment notification bodies.
const maxBodyBytes = 64 << 10

// LedgerService is the part of the ledger the API exposes.
type LedgerService interface {
	ConfirmPayment(ctx context.Context, cmd ledgerApp.ConfirmPaymentCommand) (*ledgerApp.ConfirmPaymentResult, error)
	FindByExternalID(ctx context.Context, externalID string) (*ledgerDomain.User, error)
	Balance(ctx context.Context, userID uuid.UUID) (*ledgerApp.Balance, error)
}

// LedgerHandler handles ledger API requests.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// PackageResponse is one catalog entry.
type PackageResponse struct {
	Tag            string `json:"tag"`
	Kind           string `json:"kind"`
	Plan           string `json:"plan,omitempty"`
	Solutions      int    `json:"solutions"`
	DiscussionBase int    `json:"discussion_base"`
	Discussions    int    `json:"discussions"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
}

// ListPackages handles GET /api/v1/packages
func (h *LedgerHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := ledgerDomain.Packages()
	out := make([]PackageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, PackageResponse{
			Tag:            p.Tag,
			Kind:           string(p.Kind),
			Plan:           p.Plan,
			Solutions:      p.Solutions,
			DiscussionBase: p.DiscussionBase,
			Discussions:    p.Discussions,
			Price:          p.Price.StringFixed(2),
			Currency:       p.Currency,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packages":            out,
		"free_tier_allowance": ledgerDomain.FreeTierAllowance,
	})
}

// PaymentRequest is a payment-succeeded notification.
type PaymentRequest struct {
	Provider   string          `json:"provider"`
	PaymentID  string          `json:"payment_id"`
	UserID     string          `json:"user_id,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Package    string          `json:"package"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// ConfirmPayment handles POST /api/v1/payments. Repeated notifications for
// the same provider payment id answer 200 with applied=false.
func (h *LedgerHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PaymentID) == "" || strings.TrimSpace(req.Provider) == "" {
		writeError(w, http.StatusBadRequest, "Fields 'provider' and 'payment_id' are required")
		return
	}
	if req.UserID == "" && req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "One of 'user_id' or 'external_id' is required")
		return
	}

	cmd := ledgerApp.ConfirmPaymentCommand{
		Provider:   req.Provider,
		PaymentID:  req.PaymentID,
		ExternalID: req.ExternalID,
		PackageTag: req.Package,
		Amount:     req.Amount,
		Currency:   req.Currency,
	}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'user_id'")
			return
		}
		cmd.UserID = id
	}

	result, err := h.ledger.ConfirmPayment(r.Context(), cmd)
	if err != nil {
		h.writeLedgerError(w, "confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBalance handles GET /api/v1/users/{externalID}/balance
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("externalID")
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "External ID is required")
		return
	}

	user, err := h.ledger.FindByExternalID(r.Context(), externalID)
	if err != nil {
		h.writeLedgerError(w, "find user", err)
		return
	}
	balance, err := h.ledger.Balance(r.Context(), user.ID())
	if err != nil {
		h.writeLedgerError(w, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *LedgerHandler) writeLedgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledgerDomain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ledgerDomain.ErrUnknownPackage):
		writeError(w, http.StatusBadRequest, "Unknown package")
	case errors.Is(err, ledgerDomain.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "Amount does not cover the package price")
	case errors.Is(err, ledgerDomain.ErrPackageKindMismatch):
		writeError(w, http.StatusBadRequest, "Package cannot be applied")
	default:
		h.logger.Error("failed to "+op, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}
