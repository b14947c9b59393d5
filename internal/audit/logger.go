// Package audit emits structured log records for every monetary event,
// keyed so reconciliation tooling can filter them out of the main log
// stream.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventChatRequested     EventType = "chat_requested"
	EventChatAccepted      EventType = "chat_accepted"
	EventSessionActivated  EventType = "session_activated"
	EventMinuteBilled      EventType = "minute_billed"
	EventLowBalanceEnd     EventType = "low_balance_end"
	EventSessionEnded      EventType = "session_ended"
	EventWalletTopup       EventType = "wallet_topup"
	EventSettlementPaid    EventType = "settlement_paid"
	EventInvariantViolated EventType = "invariant_violated"
)

type Event struct {
	Type         EventType
	SessionID    string
	UserID       string
	AstrologerID string
	Amount       int64
	Details      map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "billing").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.UserID != "" {
		logger = logger.With().Str("user_id", event.UserID).Logger()
	}
	if event.AstrologerID != "" {
		logger = logger.With().Str("astrologer_id", event.AstrologerID).Logger()
	}
	if event.Amount != 0 {
		logger = logger.With().Int64("amount", event.Amount).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("billing audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	default:
		return e.Interface(key, v)
	}
}
