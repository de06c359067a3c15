package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

func TestPhaseMachine_HappyPath(t *testing.T) {
	pm := NewPhaseMachine()
	s := &RoomState{Phase: PhaseNone}

	steps := []struct {
		event PhaseEvent
		to    Phase
	}{
		{EventStartGame, PhaseDescription},
		{EventSpeakingDone, PhaseVoting},
		{EventRevote, PhaseVoting},
		{EventTallyDone, PhaseElimination},
		{EventNextRound, PhaseDescription},
		{EventSpeakingDone, PhaseVoting},
		{EventTallyDone, PhaseElimination},
		{EventGameOver, PhaseGameOver},
		{EventReset, PhaseNone},
	}
	for _, step := range steps {
		_, to, err := pm.Fire(s, step.event)
		require.NoError(t, err, "事件 %s", step.event)
		assert.Equal(t, step.to, to)
		assert.Equal(t, step.to, s.Phase)
	}
}

func TestPhaseMachine_DiscussionGuard(t *testing.T) {
	pm := NewPhaseMachine()
	s := &RoomState{Phase: PhaseDescription, Settings: Settings{DiscussionEnabled: true}}

	next, err := pm.Next(s, EventSpeakingDone)
	require.NoError(t, err)
	assert.Equal(t, PhaseDiscussion, next)
	// Next 不修改状态
	assert.Equal(t, PhaseDescription, s.Phase)

	s.Phase = PhaseDiscussion
	assert.True(t, pm.CanFire(s, EventBeginVoting))
	assert.False(t, pm.CanFire(s, EventTallyDone))
}

func TestPhaseMachine_RejectsInvalidTransitions(t *testing.T) {
	pm := NewPhaseMachine()

	testCases := []struct {
		from  Phase
		event PhaseEvent
	}{
		{PhaseNone, EventSpeakingDone},
		{PhaseDescription, EventTallyDone},
		{PhaseDescription, EventBeginVoting},
		{PhaseVoting, EventNextRound},
		{PhaseGameOver, EventStartGame},
		{PhaseElimination, EventRevote},
	}
	for _, tc := range testCases {
		s := &RoomState{Phase: tc.from}
		from, to, err := pm.Fire(s, tc.event)
		assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.GetCode(err), "%s + %s", tc.from, tc.event)
		assert.Equal(t, from, to)
		assert.Equal(t, tc.from, s.Phase)
	}
}

func TestPhaseMachine_ValidEvents(t *testing.T) {
	pm := NewPhaseMachine()

	assert.Equal(t,
		[]PhaseEvent{EventGameOver, EventReset, EventRevote, EventTallyDone},
		pm.ValidEvents(&RoomState{Phase: PhaseVoting}))
	assert.Equal(t,
		[]PhaseEvent{EventReset, EventStartGame},
		pm.ValidEvents(&RoomState{Phase: PhaseNone}))

	// 拒绝时附带当前可用的事件
	_, err := pm.Next(&RoomState{Phase: PhaseNone}, EventTallyDone)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Details, "start_game")
	assert.False(t, pm.CanFire(&RoomState{Phase: PhaseNone}, EventTallyDone))
	assert.True(t, pm.CanFire(&RoomState{Phase: PhaseNone}, EventStartGame))
}
