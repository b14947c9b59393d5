package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/model"
	redisclient "github.com/astroline/consult-server-go/internal/redis"
	"github.com/astroline/consult-server-go/internal/service"
)

// timerTickInterval drives the advisory elapsed-time ticks on room
// streams. Billing truth never derives from these.
const timerTickInterval = time.Second

type StreamHandler struct {
	broker      *events.Broker
	chatService *service.ChatService
}

func NewStreamHandler(broker *events.Broker, chatService *service.ChatService) *StreamHandler {
	return &StreamHandler{
		broker:      broker,
		chatService: chatService,
	}
}

// GET /v1/chat/sessions/{sessionID}/events?role=user&participantId=...
//
// Joining the stream is joining the room: presence is registered before
// the first event is sent, and the stream closing is the disconnect
// signal that triggers room cleanup.
func (h *StreamHandler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	role := model.ParticipantRole(r.URL.Query().Get("role"))
	participantID := r.URL.Query().Get("participantId")

	if !role.Valid() {
		writeError(w, apperrors.InvalidInput("role", "must be user or astrologer"))
		return
	}
	if participantID == "" {
		writeError(w, apperrors.MissingRequired("participantId"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	connID := uuid.NewString()
	client := h.broker.Subscribe(redisclient.RoomChannel(sessionID))
	defer h.broker.Unsubscribe(client)

	session, err := h.chatService.JoinRoom(r.Context(), sessionID, connID, role, participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		// The request context is gone by now; cleanup gets its own.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.chatService.HandleDisconnect(ctx, connID)
	}()

	setSSEHeaders(w)

	log.Info().
		Str("sessionId", sessionID).
		Str("role", string(role)).
		Str("connId", connID).
		Msg("room stream established")

	startedAt := session.StartedAt

	h.sendEvent(w, flusher, "connected", map[string]any{
		"sessionId": session.ID,
		"status":    string(session.Status),
	})

	ticker := time.NewTicker(timerTickInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(events.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("sessionId", sessionID).
				Str("connId", connID).
				Msg("room stream closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("sessionId", sessionID).
				Str("connId", connID).
				Msg("room stream closed by broker")
			return

		case event := <-client.Events:
			if event.Type == events.TypeBillingStarted && startedAt == nil {
				now := time.Now()
				startedAt = &now
			}
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}
			// Terminal events end the stream after delivery.
			if event.Type == events.TypeSessionEnded {
				return
			}

		case <-ticker.C:
			if startedAt == nil {
				continue
			}
			elapsed := int64(time.Since(*startedAt) / time.Second)
			if err := h.sendEvent(w, flusher, events.TypeTimerTick, events.TimerTickPayload{
				ElapsedSeconds: elapsed,
			}); err != nil {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// GET /v1/astrologers/{astrologerID}/events
//
// The astrologer's presence channel: incoming chat requests and
// acceptance confirmations arrive here.
func (h *StreamHandler) AstrologerEvents(w http.ResponseWriter, r *http.Request) {
	astrologerID := chi.URLParam(r, "astrologerID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	connID := uuid.NewString()
	if err := h.chatService.AstrologerConnected(r.Context(), astrologerID, connID); err != nil {
		writeError(w, err)
		return
	}

	client := h.broker.Subscribe(redisclient.AstrologerChannel(astrologerID))
	defer h.broker.Unsubscribe(client)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.chatService.AstrologerDisconnected(ctx, astrologerID, connID)
	}()

	setSSEHeaders(w)

	log.Info().
		Str("astrologerId", astrologerID).
		Str("connId", connID).
		Msg("astrologer stream established")

	h.sendEvent(w, flusher, "connected", map[string]any{"astrologerId": astrologerID})

	h.stream(r.Context(), w, flusher, client)
}

// GET /v1/users/{userID}/events
func (h *StreamHandler) UserEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	client := h.broker.Subscribe(redisclient.UserChannel(userID))
	defer h.broker.Unsubscribe(client)

	setSSEHeaders(w)

	h.sendEvent(w, flusher, "connected", map[string]any{"userId": userID})

	h.stream(r.Context(), w, flusher, client)
}

// stream pumps broker events until either side closes.
func (h *StreamHandler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, client *events.Client) {
	heartbeat := time.NewTicker(events.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done:
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (h *StreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, events.Event{Type: eventType, Data: jsonData})
}

func (h *StreamHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event events.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
