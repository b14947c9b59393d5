package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/astroline/consult-server-go/internal/config"
	"github.com/astroline/consult-server-go/internal/model"
)

func TestBootstrapper_ResumeLeavesCheckpointedSessions(t *testing.T) {
	lastBilled := time.Now().Add(-10 * time.Minute)
	stale := activeSession("sess-1", 20, &lastBilled)

	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{stale}, nil)

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryResume)
	err := b.Run(context.Background())

	assert.NoError(t, err)
	// The session stays active; the first sweep bills the gap.
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
	lifecycle.AssertNotCalled(t, "EndOnRestart", mock.Anything, mock.Anything)
}

func TestBootstrapper_ResumeEndsSessionsWithoutCheckpoint(t *testing.T) {
	broken := activeSession("sess-1", 20, nil)

	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{broken}, nil)
	lifecycle.On("ForceEnd", mock.Anything, "sess-1", mock.Anything).Return(nil)

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryResume)
	err := b.Run(context.Background())

	assert.NoError(t, err)
	lifecycle.AssertExpectations(t)
}

func TestBootstrapper_TerminateEndsEveryStaleSession(t *testing.T) {
	lastBilled := time.Now().Add(-10 * time.Minute)
	first := activeSession("sess-1", 20, &lastBilled)
	second := activeSession("sess-2", 30, &lastBilled)

	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{first, second}, nil)
	lifecycle.On("EndOnRestart", mock.Anything, "sess-1").Return(nil)
	lifecycle.On("EndOnRestart", mock.Anything, "sess-2").Return(nil)

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryTerminate)
	err := b.Run(context.Background())

	assert.NoError(t, err)
	lifecycle.AssertExpectations(t)
	// Policy cleanup is routine, never an invariant violation.
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
}

func TestBootstrapper_TerminateContinuesPastFailures(t *testing.T) {
	lastBilled := time.Now().Add(-10 * time.Minute)
	first := activeSession("sess-1", 20, &lastBilled)
	second := activeSession("sess-2", 30, &lastBilled)

	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{first, second}, nil)
	lifecycle.On("EndOnRestart", mock.Anything, "sess-1").Return(errors.New("db down"))
	lifecycle.On("EndOnRestart", mock.Anything, "sess-2").Return(nil)

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryTerminate)
	err := b.Run(context.Background())

	assert.NoError(t, err)
	lifecycle.AssertExpectations(t)
}

func TestBootstrapper_ListFailurePropagates(t *testing.T) {
	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return(nil, errors.New("db down"))

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryResume)
	err := b.Run(context.Background())

	assert.Error(t, err)
}

func TestBootstrapper_NoStaleSessions(t *testing.T) {
	sessions := new(mockSessionLister)
	lifecycle := new(mockLifecycle)

	sessions.On("FindActive", mock.Anything).Return([]model.ChatSession{}, nil)

	b := NewBootstrapper(sessions, lifecycle, config.RecoveryTerminate)
	err := b.Run(context.Background())

	assert.NoError(t, err)
	lifecycle.AssertNotCalled(t, "ForceEnd", mock.Anything, mock.Anything, mock.Anything)
	lifecycle.AssertNotCalled(t, "EndOnRestart", mock.Anything, mock.Anything)
}
