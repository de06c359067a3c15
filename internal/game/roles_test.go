package game

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

func playerIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i+1)
	}
	return ids
}

func TestClampRoleCounts(t *testing.T) {
	testCases := []struct {
		players, minority, blank int
		expected                 RoleCounts
	}{
		{3, 0, 0, RoleCounts{Majority: 2, Minority: 1}},
		{3, 2, 1, RoleCounts{Majority: 2, Minority: 1}},
		{4, 1, 1, RoleCounts{Majority: 3, Minority: 1}},
		{5, 1, 1, RoleCounts{Majority: 3, Minority: 1, Blank: 1}},
		{6, 2, 1, RoleCounts{Majority: 3, Minority: 2, Blank: 1}},
		{8, 2, 2, RoleCounts{Majority: 5, Minority: 2, Blank: 1}},
		{12, 4, 2, RoleCounts{Majority: 6, Minority: 4, Blank: 2}},
		{20, 9, 9, RoleCounts{Majority: 13, Minority: 4, Blank: 3}},
		{6, -1, -1, RoleCounts{Majority: 5, Minority: 1}},
	}

	for _, tc := range testCases {
		got := ClampRoleCounts(tc.players, tc.minority, tc.blank)
		assert.Equal(t, tc.expected, got, "players=%d minority=%d blank=%d", tc.players, tc.minority, tc.blank)
		assert.GreaterOrEqual(t, got.Majority, (tc.players+1)/2)
	}
}

func TestAssignRoles(t *testing.T) {
	words := WordPair{Majority: "苹果", Minority: "梨"}
	rng := rand.New(rand.NewSource(1))

	for n := MinPlayers; n <= MaxPlayersLimit; n++ {
		ids := playerIDs(n)
		assignments, counts, err := AssignRoles(ids, 2, 1, words, rng)
		require.NoError(t, err)
		require.Len(t, assignments, n)

		var got RoleCounts
		for _, id := range ids {
			a, ok := assignments[id]
			require.True(t, ok, id)
			switch a.Role {
			case RoleMajority:
				got.Majority++
				assert.Equal(t, "苹果", a.Word)
			case RoleMinority:
				got.Minority++
				assert.Equal(t, "梨", a.Word)
			case RoleBlank:
				got.Blank++
				assert.Empty(t, a.Word)
			}
		}
		assert.Equal(t, counts, got, "players=%d", n)
		assert.Equal(t, ClampRoleCounts(n, 2, 1), counts)
	}
}

func TestAssignRoles_NotEnoughPlayers(t *testing.T) {
	_, _, err := AssignRoles(playerIDs(2), 1, 0, WordPair{Majority: "a", Minority: "b"}, rand.New(rand.NewSource(1)))
	assert.Equal(t, apperrors.ErrNotEnoughPlayers, apperrors.GetCode(err))
}

func TestAssignRoles_Distribution(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := playerIDs(5)
	minorityHits := make(map[string]int)

	const trials = 2000
	for i := 0; i < trials; i++ {
		assignments, _, err := AssignRoles(ids, 1, 0, WordPair{Majority: "a", Minority: "b"}, rng)
		require.NoError(t, err)
		for id, a := range assignments {
			if a.Role == RoleMinority {
				minorityHits[id]++
			}
		}
	}

	// 每个座位当卧底的概率大致相同
	for _, id := range ids {
		assert.InDelta(t, trials/5, minorityHits[id], trials/10, id)
	}
}
