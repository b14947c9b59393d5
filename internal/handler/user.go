package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/service"
)

type UserHandler struct {
	directoryService *service.DirectoryService
	streamHandler    *StreamHandler
}

func NewUserHandler(directoryService *service.DirectoryService, streamHandler *StreamHandler) *UserHandler {
	return &UserHandler{
		directoryService: directoryService,
		streamHandler:    streamHandler,
	}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{userID}/events", h.streamHandler.UserEvents)
	return r
}

// POST /v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params model.CreateUserParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.InvalidInput("body", "invalid JSON"))
		return
	}

	user, err := h.directoryService.CreateUser(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
