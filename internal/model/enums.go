package model

type SessionStatus string

const (
	// SessionStatusWaiting means the session exists but billing has not
	// started; both participants must join the room first.
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	// Terminal states. No transition leaves them.
	SessionStatusEnded      SessionStatus = "ended"
	SessionStatusLowBalance SessionStatus = "low_balance"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusLowBalance
}

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

type AccountType string

const (
	AccountTypeUser       AccountType = "user"
	AccountTypeAstrologer AccountType = "astrologer"
)

type TxDirection string

const (
	TxDebit  TxDirection = "debit"
	TxCredit TxDirection = "credit"
)

type TxReason string

const (
	TxReasonTopup      TxReason = "TOPUP"
	TxReasonChatDebit  TxReason = "CHAT_DEBIT"
	TxReasonChatCredit TxReason = "CHAT_CREDIT"
	TxReasonSettlement TxReason = "SETTLEMENT"
)

// ParticipantRole identifies which side of a session a connection represents.
type ParticipantRole string

const (
	RoleUser       ParticipantRole = "user"
	RoleAstrologer ParticipantRole = "astrologer"
)

func (r ParticipantRole) Valid() bool {
	return r == RoleUser || r == RoleAstrologer
}
