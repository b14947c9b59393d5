package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/repository"
)

type mockSessionLister struct {
	mock.Mock
}

func (m *mockSessionLister) FindActive(ctx context.Context) ([]model.ChatSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatSession), args.Error(1)
}

type mockCharger struct {
	mock.Mock
}

func (m *mockCharger) ChargeSession(ctx context.Context, params repository.ChargeParams) (*repository.ChargeResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ChargeResult), args.Error(1)
}

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) EndLowBalance(ctx context.Context, sessionID string, required, current int64) error {
	args := m.Called(ctx, sessionID, required, current)
	return args.Error(0)
}

func (m *mockLifecycle) ForceEnd(ctx context.Context, sessionID, reason string) error {
	args := m.Called(ctx, sessionID, reason)
	return args.Error(0)
}

func (m *mockLifecycle) EndOnRestart(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, event events.Event) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func newTestSweeper(sessions *mockSessionLister, charger *mockCharger, lifecycle *mockLifecycle, broker *mockPublisher, now time.Time) *Sweeper {
	s := NewSweeper(sessions, charger, lifecycle, broker, 10*time.Second, time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func activeSession(id string, rate int64, lastBilledAt *time.Time) model.ChatSession {
	return model.ChatSession{
		ID:            id,
		UserID:        "user-1",
		AstrologerID:  "astro-1",
		RatePerMinute: rate,
		Status:        model.SessionStatusActive,
		LastBilledAt:  lastBilledAt,
	}
}

func TestSweep_BillsAccruedWholeMinutes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 185 seconds since the checkpoint: three whole minutes owed, the
	// 5 second remainder stays with the session.
	lastBilled := now.Add(-185 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)

	charged := session
	charged.LastBilledAt = timePtr(lastBilled.Add(180 * time.Second))
	charged.TotalSeconds = 180
	charged.TotalCoinsDeducted = 60
	charged.TotalCoinsEarned = 60

	charger.On("ChargeSession", mock.Anything, repository.ChargeParams{
		SessionID:    "sess-1",
		PrevBilledAt: lastBilled,
		Minutes:      3,
		Seconds:      180,
		Amount:       60,
	}).Return(&repository.ChargeResult{
		Outcome:            repository.ChargeApplied,
		Session:            &charged,
		UserBalance:        40,
		AstrologerEarnings: 60,
	}, nil)

	broker.On("Publish", mock.Anything, "room:sess-1", mock.Anything).Return(nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	charger.AssertExpectations(t)
	broker.AssertExpectations(t)
	lifecycle.AssertNotCalled(t, "EndLowBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_BillsGapLeftByRestart(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// A checkpoint 95 seconds old, as after a crash and resume: one
	// whole minute is owed and 35 seconds carry to the next pass.
	lastBilled := now.Add(-95 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)

	charged := session
	charged.LastBilledAt = timePtr(lastBilled.Add(time.Minute))
	charged.TotalSeconds = 60
	charged.TotalCoinsDeducted = 20
	charged.TotalCoinsEarned = 20

	charger.On("ChargeSession", mock.Anything, repository.ChargeParams{
		SessionID:    "sess-1",
		PrevBilledAt: lastBilled,
		Minutes:      1,
		Seconds:      60,
		Amount:       20,
	}).Return(&repository.ChargeResult{
		Outcome:     repository.ChargeApplied,
		Session:     &charged,
		UserBalance: 80,
	}, nil)

	broker.On("Publish", mock.Anything, "room:sess-1", mock.Anything).Return(nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	charger.AssertExpectations(t)
}

func TestSweep_SkipsBelowOneMinute(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastBilled := now.Add(-59 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	charger.AssertNotCalled(t, "ChargeSession", mock.Anything, mock.Anything)
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_InsufficientBalanceEndsSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastBilled := now.Add(-65 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)
	charger.On("ChargeSession", mock.Anything, mock.Anything).Return(&repository.ChargeResult{
		Outcome:     repository.ChargeInsufficient,
		UserBalance: 15,
	}, nil)
	lifecycle.On("EndLowBalance", mock.Anything, "sess-1", int64(20), int64(15)).Return(nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	lifecycle.AssertExpectations(t)
	// No transaction happened, so nothing is announced as billed.
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_MissingCheckpointForcesEnd(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := activeSession("sess-1", 20, nil)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)
	lifecycle.On("ForceEnd", mock.Anything, "sess-1", mock.Anything).Return(nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	lifecycle.AssertExpectations(t)
	charger.AssertNotCalled(t, "ChargeSession", mock.Anything, mock.Anything)
}

func TestSweep_StaleGuardSkipsQuietly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastBilled := now.Add(-61 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)
	charger.On("ChargeSession", mock.Anything, mock.Anything).Return(&repository.ChargeResult{
		Outcome: repository.ChargeStale,
	}, nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	lifecycle.AssertNotCalled(t, "EndLowBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_OneFailureDoesNotStopThePass(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastBilled := now.Add(-61 * time.Second)
	first := activeSession("sess-1", 20, &lastBilled)
	second := activeSession("sess-2", 30, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{first, second}, nil)

	charger.On("ChargeSession", mock.Anything, mock.MatchedBy(func(p repository.ChargeParams) bool {
		return p.SessionID == "sess-1"
	})).Return(nil, errors.New("db down"))

	chargedSecond := second
	chargedSecond.LastBilledAt = timePtr(lastBilled.Add(time.Minute))
	chargedSecond.TotalSeconds = 60
	chargedSecond.TotalCoinsDeducted = 30
	chargedSecond.TotalCoinsEarned = 30

	charger.On("ChargeSession", mock.Anything, mock.MatchedBy(func(p repository.ChargeParams) bool {
		return p.SessionID == "sess-2"
	})).Return(&repository.ChargeResult{
		Outcome:            repository.ChargeApplied,
		Session:            &chargedSecond,
		UserBalance:        70,
		AstrologerEarnings: 30,
	}, nil)

	broker.On("Publish", mock.Anything, "room:sess-2", mock.Anything).Return(nil)

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)
	sweeper.Sweep(context.Background())

	charger.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestSweep_ListFailureAbortsPass(t *testing.T) {
	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return(nil, errors.New("db down"))

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, time.Now())
	sweeper.Sweep(context.Background())

	charger.AssertNotCalled(t, "ChargeSession", mock.Anything, mock.Anything)
}

func TestSweep_PublishFailureDoesNotAffectOutcome(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastBilled := now.Add(-61 * time.Second)
	session := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	charger := new(mockCharger)
	lifecycle := new(mockLifecycle)
	broker := new(mockPublisher)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{session}, nil)

	charged := session
	charged.TotalCoinsDeducted = 20
	charger.On("ChargeSession", mock.Anything, mock.Anything).Return(&repository.ChargeResult{
		Outcome:     repository.ChargeApplied,
		Session:     &charged,
		UserBalance: 80,
	}, nil)
	broker.On("Publish", mock.Anything, "room:sess-1", mock.Anything).Return(errors.New("redis down"))

	sweeper := newTestSweeper(sessions, charger, lifecycle, broker, now)

	assert.NotPanics(t, func() {
		sweeper.Sweep(context.Background())
	})
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
