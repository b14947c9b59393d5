// Package billing drives per-interval charging for active sessions.
// A single global sweep derives its working set from the durable
// session store on every pass, so no billing state survives only in
// memory and a restart changes nothing about what is owed.
package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/audit"
	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/model"
	redisclient "github.com/astroline/consult-server-go/internal/redis"
	"github.com/astroline/consult-server-go/internal/repository"
)

// SessionLister is the slice of the session repository the sweep needs.
type SessionLister interface {
	FindActive(ctx context.Context) ([]model.ChatSession, error)
}

// Charger performs the atomic per-interval transfer.
type Charger interface {
	ChargeSession(ctx context.Context, params repository.ChargeParams) (*repository.ChargeResult, error)
}

// Lifecycle is the coordinator surface the sweep terminates sessions
// through. Both operations are idempotent.
type Lifecycle interface {
	EndLowBalance(ctx context.Context, sessionID string, required, current int64) error
	ForceEnd(ctx context.Context, sessionID, reason string) error
}

const sweepTimeout = 30 * time.Second

type Sweeper struct {
	sessions        SessionLister
	charger         Charger
	lifecycle       Lifecycle
	broker          events.Publisher
	interval        time.Duration
	billingInterval time.Duration
	now             func() time.Time
	done            chan struct{}
}

func NewSweeper(
	sessions SessionLister,
	charger Charger,
	lifecycle Lifecycle,
	broker events.Publisher,
	interval time.Duration,
	billingInterval time.Duration,
) *Sweeper {
	return &Sweeper{
		sessions:        sessions,
		charger:         charger,
		lifecycle:       lifecycle,
		broker:          broker,
		interval:        interval,
		billingInterval: billingInterval,
		now:             time.Now,
		done:            make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	log.Info().
		Dur("interval", s.interval).
		Dur("billingInterval", s.billingInterval).
		Msg("billing sweep started")
}

func (s *Sweeper) Stop() {
	close(s.done)
	log.Info().Msg("billing sweep stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep bills every active session that has accrued at least one whole
// interval since its last successful bill. A failure on one session is
// logged and never stops the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	active, err := s.sessions.FindActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active sessions")
		return
	}

	for i := range active {
		s.processSession(ctx, &active[i])
	}
}

func (s *Sweeper) processSession(ctx context.Context, session *model.ChatSession) {
	if session.LastBilledAt == nil {
		// Active without a billing checkpoint: unrecoverable state.
		log.Error().
			Str("sessionId", session.ID).
			Msg("active session has no lastBilledAt, force ending")
		if err := s.lifecycle.ForceEnd(ctx, session.ID, "active session missing lastBilledAt"); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("force end failed")
		}
		return
	}

	elapsed := s.now().Sub(*session.LastBilledAt)
	minutes := int64(elapsed / s.billingInterval)
	if minutes < 1 {
		return
	}

	billedSeconds := minutes * int64(s.billingInterval/time.Second)
	amount := minutes * session.RatePerMinute

	result, err := s.charger.ChargeSession(ctx, repository.ChargeParams{
		SessionID:    session.ID,
		PrevBilledAt: *session.LastBilledAt,
		Minutes:      minutes,
		Seconds:      billedSeconds,
		Amount:       amount,
	})
	if err != nil {
		// Transient store failure: accumulators did not advance, so the
		// interval is simply re-billed on the next pass.
		log.Error().Err(err).
			Str("sessionId", session.ID).
			Int64("minutes", minutes).
			Msg("billing tick failed, will retry next sweep")
		return
	}

	switch result.Outcome {
	case repository.ChargeApplied:
		s.publishMinuteBilled(ctx, result)
		audit.Log(ctx, audit.Event{
			Type:         audit.EventMinuteBilled,
			SessionID:    session.ID,
			UserID:       session.UserID,
			AstrologerID: session.AstrologerID,
			Amount:       amount,
			Details: map[string]interface{}{
				"minutes":     minutes,
				"coinsLeft":   result.UserBalance,
				"totalBilled": result.Session.TotalCoinsDeducted,
			},
		})
		log.Info().
			Str("sessionId", session.ID).
			Int64("minutes", minutes).
			Int64("amount", amount).
			Int64("coinsLeft", result.UserBalance).
			Msg("interval billed")

	case repository.ChargeInsufficient:
		log.Info().
			Str("sessionId", session.ID).
			Int64("required", amount).
			Int64("current", result.UserBalance).
			Msg("insufficient balance, ending session")
		if err := s.lifecycle.EndLowBalance(ctx, session.ID, session.RatePerMinute, result.UserBalance); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("low balance end failed")
		}

	case repository.ChargeMissingAccount:
		log.Error().
			Str("sessionId", session.ID).
			Str("userId", session.UserID).
			Str("astrologerId", session.AstrologerID).
			Msg("active session references missing account, force ending")
		if err := s.lifecycle.ForceEnd(ctx, session.ID, "missing ledger account"); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("force end failed")
		}

	case repository.ChargeStale:
		// Another actor advanced the session first; nothing to do.
		log.Debug().
			Str("sessionId", session.ID).
			Msg("billing tick lost the guard, skipping")
	}
}

func (s *Sweeper) publishMinuteBilled(ctx context.Context, result *repository.ChargeResult) {
	sess := result.Session
	event, err := events.Marshal(events.TypeMinuteBilled, events.MinuteBilledPayload{
		Minutes:            sess.TotalSeconds / int64(s.billingInterval/time.Second),
		CoinsLeft:          result.UserBalance,
		AstrologerEarnings: result.AstrologerEarnings,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal minute-billed event")
		return
	}
	if err := s.broker.Publish(ctx, redisclient.RoomChannel(sess.ID), event); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID).Msg("failed to publish minute-billed event")
	}
}
