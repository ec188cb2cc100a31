package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundFSM(t *testing.T) {
	f := newRoundFSM("1")
	assert.Equal(t, PhaseNotStarted, f.Current())

	require.Error(t, f.Trigger(eventAllGuessed))
	require.Error(t, f.Trigger(eventNextRound))
	assert.Equal(t, PhaseNotStarted, f.Current())

	require.NoError(t, f.Trigger(eventStart))
	assert.Equal(t, PhaseAwaitingGuesses, f.Current())
	require.Error(t, f.Trigger(eventStart))

	require.NoError(t, f.Trigger(eventAllGuessed))
	assert.Equal(t, PhaseResolved, f.Current())

	require.NoError(t, f.Trigger(eventNextRound))
	assert.Equal(t, PhaseAwaitingGuesses, f.Current())
}
