package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/service"
)

type ChatHandler struct {
	chatService   *service.ChatService
	walletService *service.WalletService
	streamHandler *StreamHandler
}

func NewChatHandler(chatService *service.ChatService, walletService *service.WalletService, streamHandler *StreamHandler) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		walletService: walletService,
		streamHandler: streamHandler,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/requests", h.RequestChat)
	r.Post("/requests/{requestID}/accept", h.AcceptChat)
	r.Get("/sessions/{sessionID}", h.GetSession)
	r.Get("/sessions/{sessionID}/events", h.streamHandler.RoomEvents)
	r.Post("/sessions/{sessionID}/end", h.EndSession)
	r.Get("/sessions/{sessionID}/transactions", h.SessionTransactions)

	return r
}

type requestChatBody struct {
	UserID       string `json:"userId"`
	AstrologerID string `json:"astrologerId"`
}

// POST /v1/chat/requests
func (h *ChatHandler) RequestChat(w http.ResponseWriter, r *http.Request) {
	var body requestChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if body.UserID == "" {
		writeError(w, apperrors.MissingRequired("userId"))
		return
	}
	if body.AstrologerID == "" {
		writeError(w, apperrors.MissingRequired("astrologerId"))
		return
	}

	req, err := h.chatService.RequestChat(r.Context(), body.UserID, body.AstrologerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// POST /v1/chat/requests/{requestID}/accept
func (h *ChatHandler) AcceptChat(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, apperrors.MissingRequired("requestID"))
		return
	}

	session, err := h.chatService.AcceptChat(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GET /v1/chat/sessions/{sessionID}
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatService.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type endSessionBody struct {
	EndedBy string `json:"endedBy"`
}

// POST /v1/chat/sessions/{sessionID}/end
func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body endSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if body.EndedBy == "" {
		writeError(w, apperrors.MissingRequired("endedBy"))
		return
	}

	session, err := h.chatService.EndSession(r.Context(), sessionID, body.EndedBy, model.SessionStatusEnded)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to end session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /v1/chat/sessions/{sessionID}/transactions
func (h *ChatHandler) SessionTransactions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	txns, err := h.walletService.SessionTransactions(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txns)
}
