package billing

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/config"
)

// RecoveryLifecycle is the coordinator surface recovery ends sessions
// through. EndOnRestart is routine policy cleanup with an ordinary
// session-end audit; ForceEnd is reserved for sessions whose state is
// actually broken.
type RecoveryLifecycle interface {
	EndOnRestart(ctx context.Context, sessionID string) error
	ForceEnd(ctx context.Context, sessionID, reason string) error
}

// Bootstrapper reconciles sessions left active by a previous process
// lifetime. It must run to completion before the sweep starts and is
// idempotent: a second run over the same store changes nothing.
type Bootstrapper struct {
	sessions  SessionLister
	lifecycle RecoveryLifecycle
	policy    config.RecoveryPolicy
}

func NewBootstrapper(sessions SessionLister, lifecycle RecoveryLifecycle, policy config.RecoveryPolicy) *Bootstrapper {
	return &Bootstrapper{
		sessions:  sessions,
		lifecycle: lifecycle,
		policy:    policy,
	}
}

// Run applies the configured recovery policy.
//
// resume: stale active sessions are left in the store; the first sweep
// bills any elapsed whole intervals since lastBilledAt with the same
// idempotent algorithm used for live sessions, so no revenue is lost
// and nothing can double-bill.
//
// terminate: every stale active session is ended now, forgoing billing
// for the downtime gap.
func (b *Bootstrapper) Run(ctx context.Context) error {
	active, err := b.sessions.FindActive(ctx)
	if err != nil {
		return err
	}

	if len(active) == 0 {
		log.Info().Msg("recovery: no stale active sessions")
		return nil
	}

	switch b.policy {
	case config.RecoveryTerminate:
		for i := range active {
			session := &active[i]
			if err := b.lifecycle.EndOnRestart(ctx, session.ID); err != nil {
				log.Error().Err(err).Str("sessionId", session.ID).Msg("recovery: failed to end stale session")
				continue
			}
			log.Info().Str("sessionId", session.ID).Msg("recovery: ended stale session")
		}
		log.Info().Int("count", len(active)).Msg("recovery: terminated stale sessions")

	default: // resume
		for i := range active {
			session := &active[i]
			if session.LastBilledAt == nil {
				// Cannot resume without a checkpoint.
				if err := b.lifecycle.ForceEnd(ctx, session.ID, "stale session missing lastBilledAt"); err != nil {
					log.Error().Err(err).Str("sessionId", session.ID).Msg("recovery: failed to end broken session")
				}
				continue
			}
			log.Info().
				Str("sessionId", session.ID).
				Time("lastBilledAt", *session.LastBilledAt).
				Msg("recovery: resuming billing from checkpoint")
		}
		log.Info().Int("count", len(active)).Msg("recovery: stale sessions handed to sweep")
	}

	return nil
}
