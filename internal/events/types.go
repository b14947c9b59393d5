package events

import "encoding/json"

// Event is the envelope carried over the broker and SSE streams.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Closed set of event types published to participants. Payloads are the
// typed structs below; nothing duck-typed crosses this boundary.
const (
	TypeIncomingChatRequest   = "incoming-chat-request"
	TypeChatAccepted          = "chat-accepted"
	TypeInsufficientCoins     = "insufficient-coins"
	TypeParticipantJoined     = "participant-joined"
	TypeParticipantLeft       = "participant-left"
	TypeBillingStarted        = "billing-started"
	TypeTimerTick             = "timer-tick"
	TypeMinuteBilled          = "minute-billed"
	TypeLowBalanceTermination = "low-balance-termination"
	TypeSessionEnded          = "session-ended"
	TypeWalletCredited        = "wallet-credited"
)

type IncomingChatRequestPayload struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type ChatAcceptedPayload struct {
	RequestID     string `json:"requestId"`
	SessionID     string `json:"sessionId"`
	UserID        string `json:"userId"`
	AstrologerID  string `json:"astrologerId"`
	RatePerMinute int64  `json:"ratePerMinute"`
}

type InsufficientCoinsPayload struct {
	Required int64 `json:"required"`
	Current  int64 `json:"current"`
}

type ParticipantPayload struct {
	Role string `json:"role"`
}

type BillingStartedPayload struct {
	SessionID     string `json:"sessionId"`
	RatePerMinute int64  `json:"ratePerMinute"`
}

// TimerTickPayload is advisory only; billing truth lives in the sweep.
type TimerTickPayload struct {
	ElapsedSeconds int64 `json:"elapsedSeconds"`
}

type MinuteBilledPayload struct {
	Minutes            int64 `json:"minutes"`
	CoinsLeft          int64 `json:"coinsLeft"`
	AstrologerEarnings int64 `json:"astrologerEarnings"`
}

type SessionEndedPayload struct {
	SessionID     string `json:"sessionId"`
	EndedBy       string `json:"endedBy"`
	Status        string `json:"status"`
	TotalSeconds  int64  `json:"totalSeconds"`
	TotalDeducted int64  `json:"totalDeducted"`
	TotalEarned   int64  `json:"totalEarned"`
}

type WalletCreditedPayload struct {
	Coins   int64  `json:"coins"`
	Balance int64  `json:"balance"`
	Ref     string `json:"ref"`
}

// Marshal wraps a typed payload into an Event envelope.
func Marshal(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}
