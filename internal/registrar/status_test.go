package registrar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTrackerHappyPath(t *testing.T) {
	var seen []State
	tracker := NewStatusTracker(func(state State, err error) {
		assert.NoError(t, err)
		seen = append(seen, state)
	})

	require.Equal(t, StateIdle, tracker.State())
	for _, next := range []State{StateUploading, StateGeneratingTx, StateSigning, StateSubmitting, StateDone} {
		require.NoError(t, tracker.Advance(next))
		require.Equal(t, next, tracker.State())
	}
	assert.Equal(t, []State{StateUploading, StateGeneratingTx, StateSigning, StateSubmitting, StateDone}, seen)
}

func TestStatusTrackerRejectsSkippedStage(t *testing.T) {
	tracker := NewStatusTracker(nil)

	require.NoError(t, tracker.Advance(StateUploading))
	err := tracker.Advance(StateSigning)
	require.Error(t, err)
	assert.Equal(t, StateUploading, tracker.State())
}

func TestStatusTrackerFailResetsToIdle(t *testing.T) {
	var gotState State
	var gotErr error
	tracker := NewStatusTracker(func(state State, err error) {
		gotState, gotErr = state, err
	})

	require.NoError(t, tracker.Advance(StateUploading))
	require.NoError(t, tracker.Advance(StateGeneratingTx))

	cause := errors.New("backend down")
	tracker.Fail(cause)

	assert.Equal(t, StateIdle, tracker.State())
	assert.Equal(t, StateIdle, gotState)
	assert.ErrorIs(t, gotErr, cause)

	// After a reset the saga restarts from the beginning.
	require.NoError(t, tracker.Advance(StateUploading))
}

func TestStatusTrackerAcknowledge(t *testing.T) {
	tracker := NewStatusTracker(nil)
	for _, next := range []State{StateUploading, StateGeneratingTx, StateSigning, StateSubmitting, StateDone} {
		require.NoError(t, tracker.Advance(next))
	}

	tracker.Acknowledge()
	assert.Equal(t, StateIdle, tracker.State())

	// Acknowledge is a no-op mid-flight.
	require.NoError(t, tracker.Advance(StateUploading))
	tracker.Acknowledge()
	assert.Equal(t, StateUploading, tracker.State())
}
