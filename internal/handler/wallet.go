package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/service"
)

type WalletHandler struct {
	walletService *service.WalletService
}

func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

func (h *WalletHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/topup", h.TopUp)
	r.Get("/{userID}", h.Balance)
	r.Get("/{userID}/transactions", h.Transactions)
	return r
}

type topUpBody struct {
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// POST /v1/wallet/topup
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var body topUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}
	if body.UserID == "" {
		writeError(w, apperrors.MissingRequired("userId"))
		return
	}
	if body.Amount <= 0 {
		writeError(w, apperrors.InvalidInput("amount", "must be positive"))
		return
	}

	user, err := h.walletService.TopUp(r.Context(), body.UserID, body.Amount, body.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GET /v1/wallet/{userID}
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := h.walletService.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": user.ID,
		"coins":  user.Coins,
	})
}

// GET /v1/wallet/{userID}/transactions
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	page := ParsePagination(r)
	txns, err := h.walletService.Transactions(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}
