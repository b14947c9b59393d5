package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/audit"
	"github.com/astroline/consult-server-go/internal/database"
	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/presence"
	redisclient "github.com/astroline/consult-server-go/internal/redis"
	"github.com/astroline/consult-server-go/internal/repository"
)

// EndedByDisconnect marks terminations triggered by connection loss
// rather than an explicit end request.
const EndedByDisconnect = "disconnect"

// EndedByBilling marks terminations decided by the billing sweep.
const EndedByBilling = "billing"

// EndedByRestart marks routine cleanup of sessions left active by a
// previous process lifetime under the terminate recovery policy.
const EndedByRestart = "restart"

// txRunner is the slice of database.DB the coordinator needs; tests
// substitute a stub that runs the function against a nil tx.
type txRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// ChatService is the session lifecycle coordinator. It owns every
// status transition; the billing sweep only ever touches accumulators
// through its own guarded update.
type ChatService struct {
	db          txRunner
	requests    repository.ChatRequestRepository
	sessions    repository.SessionRepository
	users       repository.UserRepository
	astrologers repository.AstrologerRepository
	broker      events.Publisher
	presence    *presence.Registry
	interval    time.Duration
}

func NewChatService(
	db txRunner,
	requests repository.ChatRequestRepository,
	sessions repository.SessionRepository,
	users repository.UserRepository,
	astrologers repository.AstrologerRepository,
	broker events.Publisher,
	registry *presence.Registry,
	billingInterval time.Duration,
) *ChatService {
	return &ChatService{
		db:          db,
		requests:    requests,
		sessions:    sessions,
		users:       users,
		astrologers: astrologers,
		broker:      broker,
		presence:    registry,
		interval:    billingInterval,
	}
}

// RequestChat validates the user can afford at least one billing
// interval at the astrologer's current rate, records the request and
// notifies the astrologer.
func (s *ChatService) RequestChat(ctx context.Context, userID, astrologerID string) (*model.ChatRequest, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}

	astro, err := s.astrologers.FindByID(ctx, astrologerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if astro == nil {
		return nil, apperrors.NotFound("Astrologer")
	}

	if user.Coins < astro.RatePerMinute {
		s.publish(ctx, redisclient.UserChannel(user.ID), events.TypeInsufficientCoins, events.InsufficientCoinsPayload{
			Required: astro.RatePerMinute,
			Current:  user.Coins,
		})
		return nil, apperrors.InsufficientCoins(astro.RatePerMinute, user.Coins)
	}

	req, err := s.requests.Create(ctx, model.CreateChatRequestParams{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		AstrologerID: astro.ID,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	s.publish(ctx, redisclient.AstrologerChannel(astro.ID), events.TypeIncomingChatRequest, events.IncomingChatRequestPayload{
		RequestID: req.ID,
		UserID:    user.ID,
		UserName:  user.Name,
	})

	audit.Log(ctx, audit.Event{
		Type:         audit.EventChatRequested,
		UserID:       user.ID,
		AstrologerID: astro.ID,
		Details:      map[string]interface{}{"requestId": req.ID},
	})

	log.Info().
		Str("requestId", req.ID).
		Str("userId", user.ID).
		Str("astrologerId", astro.ID).
		Msg("chat requested")

	return req, nil
}

// AcceptChat transitions the request out of pending exactly once and
// creates the session with the rate snapshotted from the astrologer's
// profile. Concurrent accepts lose on the pending guard; a user who can
// no longer afford one interval gets the request rejected instead.
func (s *ChatService) AcceptChat(ctx context.Context, requestID string) (*model.ChatSession, error) {
	var session *model.ChatSession
	var insufficient *apperrors.AppError

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		requests := s.requests.WithTx(tx)
		sessions := s.sessions.WithTx(tx)
		users := s.users.WithTx(tx)
		astrologers := s.astrologers.WithTx(tx)

		req, err := requests.MarkAccepted(ctx, requestID)
		if err != nil {
			return fmt.Errorf("mark accepted: %w", err)
		}
		if req == nil {
			existing, ferr := requests.FindByID(ctx, requestID)
			if ferr != nil {
				return fmt.Errorf("find request: %w", ferr)
			}
			if existing == nil {
				return apperrors.NotFound("Chat request")
			}
			return apperrors.RequestNotPending()
		}

		user, err := users.FindByID(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		astro, err := astrologers.FindByID(ctx, req.AstrologerID)
		if err != nil {
			return fmt.Errorf("find astrologer: %w", err)
		}
		if user == nil || astro == nil {
			return apperrors.NotFound("Participant")
		}

		if user.Coins < astro.RatePerMinute {
			// MarkAccepted already moved the row out of pending inside
			// this transaction; MarkRejected covers the accepted status
			// so the request never commits as accepted without a session.
			rejected, rerr := requests.MarkRejected(ctx, req.ID)
			if rerr != nil {
				return fmt.Errorf("reject request: %w", rerr)
			}
			if rejected == nil {
				return fmt.Errorf("reject request %s: row left rejectable status", req.ID)
			}
			insufficient = apperrors.InsufficientCoins(astro.RatePerMinute, user.Coins)
			// The rejection must commit even though acceptance failed.
			return nil
		}

		session, err = sessions.Create(ctx, model.CreateSessionParams{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			AstrologerID:  astro.ID,
			RatePerMinute: astro.RatePerMinute,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Database(err)
	}

	if insufficient != nil {
		req, _ := s.requests.FindByID(ctx, requestID)
		if req != nil {
			s.publish(ctx, redisclient.UserChannel(req.UserID), events.TypeInsufficientCoins, events.InsufficientCoinsPayload{
				Required: requiredFromDetails(insufficient),
				Current:  currentFromDetails(insufficient),
			})
		}
		return nil, insufficient
	}

	accepted := events.ChatAcceptedPayload{
		RequestID:     requestID,
		SessionID:     session.ID,
		UserID:        session.UserID,
		AstrologerID:  session.AstrologerID,
		RatePerMinute: session.RatePerMinute,
	}
	s.publish(ctx, redisclient.UserChannel(session.UserID), events.TypeChatAccepted, accepted)
	s.publish(ctx, redisclient.AstrologerChannel(session.AstrologerID), events.TypeChatAccepted, accepted)

	audit.Log(ctx, audit.Event{
		Type:         audit.EventChatAccepted,
		SessionID:    session.ID,
		UserID:       session.UserID,
		AstrologerID: session.AstrologerID,
		Details:      map[string]interface{}{"requestId": requestID, "ratePerMinute": session.RatePerMinute},
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("requestId", requestID).
		Int64("ratePerMinute", session.RatePerMinute).
		Msg("chat accepted, session created")

	return session, nil
}

// AstrologerConnected records the connection currently representing an
// astrologer and marks the profile online.
func (s *ChatService) AstrologerConnected(ctx context.Context, astrologerID, connID string) error {
	astro, err := s.astrologers.FindByID(ctx, astrologerID)
	if err != nil {
		return apperrors.Database(err)
	}
	if astro == nil {
		return apperrors.NotFound("Astrologer")
	}

	s.presence.RegisterAstrologer(astrologerID, connID)
	if err := s.astrologers.SetOnline(ctx, astrologerID, true); err != nil {
		log.Warn().Err(err).Str("astrologerId", astrologerID).Msg("failed to mark astrologer online")
	}
	return nil
}

// AstrologerDisconnected tears down presence for the astrologer's
// connection and runs room cleanup for anything it had joined.
func (s *ChatService) AstrologerDisconnected(ctx context.Context, astrologerID, connID string) {
	s.presence.UnregisterAstrologer(astrologerID, connID)
	if !s.presence.AstrologerOnline(astrologerID) {
		if err := s.astrologers.SetOnline(ctx, astrologerID, false); err != nil {
			log.Warn().Err(err).Str("astrologerId", astrologerID).Msg("failed to mark astrologer offline")
		}
	}
	s.HandleDisconnect(ctx, connID)
}

// JoinRoom registers presence for one side of a session and activates
// it once both sides are in. Duplicate joins are no-ops.
func (s *ChatService) JoinRoom(ctx context.Context, sessionID, connID string, role model.ParticipantRole, participantID string) (*model.ChatSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status.Terminal() {
		return nil, apperrors.SessionTerminal(sessionID)
	}

	bothPresent := s.presence.Join(sessionID, connID, role, participantID)

	s.publish(ctx, redisclient.RoomChannel(sessionID), events.TypeParticipantJoined, events.ParticipantPayload{
		Role: string(role),
	})

	log.Info().
		Str("sessionId", sessionID).
		Str("role", string(role)).
		Bool("bothPresent", bothPresent).
		Msg("participant joined room")

	if bothPresent {
		return s.activateSession(ctx, sessionID)
	}
	return session, nil
}

// activateSession performs the waiting -> active transition. The
// conditional update makes redundant activation attempts harmless.
func (s *ChatService) activateSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	now := time.Now()
	session, err := s.sessions.MarkActive(ctx, sessionID, now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		// Already active (or terminal): another join signal won.
		current, err := s.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		return current, nil
	}

	s.publish(ctx, redisclient.RoomChannel(sessionID), events.TypeBillingStarted, events.BillingStartedPayload{
		SessionID:     session.ID,
		RatePerMinute: session.RatePerMinute,
	})

	audit.Log(ctx, audit.Event{
		Type:         audit.EventSessionActivated,
		SessionID:    session.ID,
		UserID:       session.UserID,
		AstrologerID: session.AstrologerID,
	})

	log.Info().
		Str("sessionId", session.ID).
		Time("startedAt", now).
		Msg("session activated, billing started")

	return session, nil
}

// EndSession performs the single terminal transition. Ending an already
// ended session returns the current record and publishes nothing: the
// conditional update guarantees exactly one winner between concurrent
// end requests, disconnect cleanup and the billing sweep.
func (s *ChatService) EndSession(ctx context.Context, sessionID, endedBy string, status model.SessionStatus) (*model.ChatSession, error) {
	if !status.Terminal() {
		return nil, apperrors.InvalidInput("status", "must be terminal")
	}

	session, err := s.sessions.Finish(ctx, sessionID, status, endedBy, time.Now())
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		current, err := s.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if current == nil {
			return nil, apperrors.NotFound("Session")
		}
		log.Debug().
			Str("sessionId", sessionID).
			Str("status", string(current.Status)).
			Msg("end request for already terminal session")
		return current, nil
	}

	if status == model.SessionStatusLowBalance {
		s.publish(ctx, redisclient.RoomChannel(session.ID), events.TypeLowBalanceTermination, events.InsufficientCoinsPayload{
			Required: session.RatePerMinute,
		})
	}

	s.publish(ctx, redisclient.RoomChannel(session.ID), events.TypeSessionEnded, events.SessionEndedPayload{
		SessionID:     session.ID,
		EndedBy:       endedBy,
		Status:        string(session.Status),
		TotalSeconds:  session.TotalSeconds,
		TotalDeducted: session.TotalCoinsDeducted,
		TotalEarned:   session.TotalCoinsEarned,
	})

	s.presence.Release(session.ID)

	auditType := audit.EventSessionEnded
	if status == model.SessionStatusLowBalance {
		auditType = audit.EventLowBalanceEnd
	}
	audit.Log(ctx, audit.Event{
		Type:         auditType,
		SessionID:    session.ID,
		UserID:       session.UserID,
		AstrologerID: session.AstrologerID,
		Amount:       session.TotalCoinsDeducted,
		Details:      map[string]interface{}{"endedBy": endedBy, "totalSeconds": session.TotalSeconds},
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("status", string(session.Status)).
		Str("endedBy", endedBy).
		Int64("totalCoinsDeducted", session.TotalCoinsDeducted).
		Msg("session ended")

	return session, nil
}

// EndLowBalance is the sweep's insufficient-funds path: a defined
// terminal transition, never an error and never retried.
func (s *ChatService) EndLowBalance(ctx context.Context, sessionID string, required, current int64) error {
	s.publish(ctx, redisclient.RoomChannel(sessionID), events.TypeInsufficientCoins, events.InsufficientCoinsPayload{
		Required: required,
		Current:  current,
	})
	_, err := s.EndSession(ctx, sessionID, EndedByBilling, model.SessionStatusLowBalance)
	return err
}

// ForceEnd terminates a session whose invariants no longer hold (for
// example an active session with a missing ledger account). It must
// never leave the session active.
func (s *ChatService) ForceEnd(ctx context.Context, sessionID, reason string) error {
	audit.Log(ctx, audit.Event{
		Type:      audit.EventInvariantViolated,
		SessionID: sessionID,
		Details:   map[string]interface{}{"reason": reason},
	})
	_, err := s.EndSession(ctx, sessionID, EndedByBilling, model.SessionStatusEnded)
	return err
}

// EndOnRestart closes a session left active by a previous process
// lifetime. Unlike ForceEnd this is routine cleanup, not an invariant
// violation, so it audits as an ordinary session end attributed to the
// restart.
func (s *ChatService) EndOnRestart(ctx context.Context, sessionID string) error {
	_, err := s.EndSession(ctx, sessionID, EndedByRestart, model.SessionStatusEnded)
	return err
}

// LeaveRoom handles a graceful leave: the room loses the connection and
// the session ends attributed to the leaving role.
func (s *ChatService) LeaveRoom(ctx context.Context, sessionID, connID string, role model.ParticipantRole) error {
	s.presence.Leave(sessionID, connID)
	s.publish(ctx, redisclient.RoomChannel(sessionID), events.TypeParticipantLeft, events.ParticipantPayload{
		Role: string(role),
	})
	_, err := s.EndSession(ctx, sessionID, string(role), model.SessionStatusEnded)
	return err
}

// HandleDisconnect runs cleanup for every room a vanished connection
// had joined. Each room's termination is idempotent, so racing a
// graceful end is safe.
func (s *ChatService) HandleDisconnect(ctx context.Context, connID string) {
	rooms := s.presence.Disconnect(connID)
	for _, sessionID := range rooms {
		s.publish(ctx, redisclient.RoomChannel(sessionID), events.TypeParticipantLeft, events.ParticipantPayload{
			Role: "unknown",
		})
		if _, err := s.EndSession(ctx, sessionID, EndedByDisconnect, model.SessionStatusEnded); err != nil {
			log.Error().Err(err).
				Str("sessionId", sessionID).
				Str("connId", connID).
				Msg("disconnect cleanup failed")
		}
	}
	if len(rooms) > 0 {
		log.Info().
			Str("connId", connID).
			Int("rooms", len(rooms)).
			Msg("disconnect cleanup complete")
	}
}

func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// publish is best-effort: a failed fan-out is logged and never
// propagates into the state change that triggered it.
func (s *ChatService) publish(ctx context.Context, channel, eventType string, payload any) {
	event, err := events.Marshal(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal event")
		return
	}
	if err := s.broker.Publish(ctx, channel, event); err != nil {
		log.Warn().Err(err).
			Str("channel", channel).
			Str("eventType", eventType).
			Msg("failed to publish event")
	}
}

func requiredFromDetails(err *apperrors.AppError) int64 {
	if details, ok := err.Details.(map[string]int64); ok {
		return details["required"]
	}
	return 0
}

func currentFromDetails(err *apperrors.AppError) int64 {
	if details, ok := err.Details.(map[string]int64); ok {
		return details["current"]
	}
	return 0
}
