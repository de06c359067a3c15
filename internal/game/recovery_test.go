package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"go.uber.org/zap"
)

func newTestRecovery(t *testing.T) (*RecoveryManager, *MemoryRoomPersister, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	persister := NewMemoryRoomPersister()
	return NewRecoveryManager(zap.NewNop(), persister, clock), persister, clock
}

func inProgressState(now time.Time) *RoomState {
	return &RoomState{
		Code:     "ROOM01",
		HostID:   "p1",
		Status:   StatusInProgress,
		Phase:    PhaseDescription,
		Settings: Settings{MaxPlayers: 8, RoundTimeSeconds: 60, WordPack: "classic", MinorityCount: 1},
		Players: []Player{
			{ID: "p1", DisplayName: "A", Role: RoleMinority, SecretWord: "梨", Connected: true, Left: true, IsEliminated: true},
			{ID: "p2", DisplayName: "B", Role: RoleMajority, SecretWord: "苹果", Connected: true, IsReady: true},
			{ID: "p3", DisplayName: "C", Role: RoleMajority, SecretWord: "苹果", IsReady: true},
			{ID: "p4", DisplayName: "D", Role: RoleMajority, SecretWord: "苹果", IsReady: true},
		},
		Rounds: []Round{{
			Number:        1,
			SpeakingOrder: []string{"p2", "p3", "p4"},
			Votes:         map[string]string{},
		}},
		Words:      WordPair{Majority: "苹果", Minority: "梨"},
		Winner:     WinnerNone,
		GameNumber: 1,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
		Version:    7,
	}
}

func TestRecoveryManager_RecoverInProgress(t *testing.T) {
	rm, persister, clock := newTestRecovery(t)
	ctx := context.Background()

	state := inProgressState(clock.Now())
	state.Deadline = clock.Now().Add(30 * time.Second)
	require.NoError(t, persister.Save(ctx, state))

	got, err := rm.RecoverRoom(ctx, state.Code)
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, PhaseDescription, got.Phase)
	assert.Equal(t, int64(8), got.Version)
	assert.True(t, got.Deadline.Equal(state.Deadline))
	for _, p := range got.Players {
		assert.False(t, p.Connected, p.ID)
	}

	// 写回存储
	saved, err := persister.Load(ctx, state.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(8), saved.Version)
}

func TestRecoveryManager_FillsMissingDeadline(t *testing.T) {
	rm, persister, clock := newTestRecovery(t)
	ctx := context.Background()

	state := inProgressState(clock.Now())
	require.NoError(t, persister.Save(ctx, state))

	got, err := rm.RecoverRoom(ctx, state.Code)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), got.Deadline)
}

func TestRecoveryManager_BrokenStateFallsBackToWaiting(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(s *RoomState)
	}{
		{"缺少轮次", func(s *RoomState) { s.Rounds = nil }},
		{"出局阶段没有猜词窗口", func(s *RoomState) { s.Phase = PhaseElimination }},
		{"未知状态", func(s *RoomState) { s.Status = "paused" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rm, persister, clock := newTestRecovery(t)
			ctx := context.Background()

			state := inProgressState(clock.Now())
			tc.mutate(state)
			require.NoError(t, persister.Save(ctx, state))

			got, err := rm.RecoverRoom(ctx, state.Code)
			require.NoError(t, err)

			assert.Equal(t, StatusWaiting, got.Status)
			assert.Equal(t, PhaseNone, got.Phase)
			assert.Empty(t, got.Rounds)
			assert.True(t, got.Words.IsZero())
			// 离开的房主被移出，房主移交给第一位玩家
			require.Len(t, got.Players, 3)
			assert.Equal(t, "p2", got.HostID)
			for _, p := range got.Players {
				assert.Equal(t, RoleUnassigned, p.Role)
				assert.Empty(t, p.SecretWord)
				assert.False(t, p.IsReady)
			}
		})
	}
}

func TestRecoveryManager_ExpiredRoomIsDeleted(t *testing.T) {
	rm, persister, clock := newTestRecovery(t)
	ctx := context.Background()

	state := inProgressState(clock.Now())
	require.NoError(t, persister.Save(ctx, state))

	clock.Advance(2 * time.Hour)
	_, err := rm.RecoverRoom(ctx, state.Code)
	assert.Equal(t, apperrors.ErrRoomNotFound, apperrors.GetCode(err))
	assert.Zero(t, persister.Len())
}

func TestRecoveryManager_UnchangedStateNotRewritten(t *testing.T) {
	rm, persister, clock := newTestRecovery(t)
	ctx := context.Background()

	state := &RoomState{
		Code:      "ROOM02",
		HostID:    "p1",
		Status:    StatusWaiting,
		Phase:     PhaseNone,
		Players:   []Player{{ID: "p1", DisplayName: "A"}},
		ExpiresAt: clock.Now().Add(time.Hour),
		Version:   3,
	}
	require.NoError(t, persister.Save(ctx, state))

	got, err := rm.RecoverRoom(ctx, state.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
}

func TestRecoveryManager_RecoverAll(t *testing.T) {
	rm, persister, clock := newTestRecovery(t)
	ctx := context.Background()

	a := inProgressState(clock.Now())
	b := inProgressState(clock.Now())
	b.Code = "ROOM02"
	b.Status = StatusCompleted
	b.Phase = PhaseGameOver
	c := inProgressState(clock.Now())
	c.Code = "ROOM03"
	c.ExpiresAt = clock.Now().Add(-time.Minute)
	for _, s := range []*RoomState{a, b, c} {
		require.NoError(t, persister.Save(ctx, s))
	}

	states, err := rm.RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "ROOM01", states[0].Code)
	assert.Equal(t, "ROOM02", states[1].Code)
	assert.Equal(t, StatusCompleted, states[1].Status)

	n, err := rm.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, persister.Len())
}
