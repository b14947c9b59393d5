package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/service"
)

type AstrologerHandler struct {
	directoryService  *service.DirectoryService
	settlementService *service.SettlementService
	streamHandler     *StreamHandler
}

func NewAstrologerHandler(directoryService *service.DirectoryService, settlementService *service.SettlementService, streamHandler *StreamHandler) *AstrologerHandler {
	return &AstrologerHandler{
		directoryService:  directoryService,
		settlementService: settlementService,
		streamHandler:     streamHandler,
	}
}

func (h *AstrologerHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{astrologerID}", h.Get)
	r.Get("/{astrologerID}/events", h.streamHandler.AstrologerEvents)
	r.Post("/{astrologerID}/settlements", h.Settle)
	r.Get("/{astrologerID}/settlements", h.Settlements)
	return r
}

// POST /v1/astrologers
func (h *AstrologerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params model.CreateAstrologerParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	astro, err := h.directoryService.CreateAstrologer(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, astro)
}

// GET /v1/astrologers
func (h *AstrologerHandler) List(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	astros, err := h.directoryService.ListAstrologers(r.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, astros)
}

// GET /v1/astrologers/{astrologerID}
func (h *AstrologerHandler) Get(w http.ResponseWriter, r *http.Request) {
	astro, err := h.directoryService.GetAstrologer(r.Context(), chi.URLParam(r, "astrologerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, astro)
}

type settleBody struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// POST /v1/astrologers/{astrologerID}/settlements
func (h *AstrologerHandler) Settle(w http.ResponseWriter, r *http.Request) {
	astrologerID := chi.URLParam(r, "astrologerID")

	var body settleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}
	if body.Amount <= 0 {
		writeError(w, apperrors.InvalidInput("amount", "must be positive"))
		return
	}

	settlement, err := h.settlementService.Settle(r.Context(), astrologerID, body.Amount, body.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

// GET /v1/astrologers/{astrologerID}/settlements
func (h *AstrologerHandler) Settlements(w http.ResponseWriter, r *http.Request) {
	astrologerID := chi.URLParam(r, "astrologerID")
	page := ParsePagination(r)

	settlements, err := h.settlementService.List(r.Context(), astrologerID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}
