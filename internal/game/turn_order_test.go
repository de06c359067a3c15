package game

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func candidates(roles ...Role) []TurnCandidate {
	out := make([]TurnCandidate, len(roles))
	for i, r := range roles {
		out[i] = TurnCandidate{ID: string(rune('a' + i)), Role: r}
	}
	return out
}

func TestGenerateTurnOrder_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	players := candidates(RoleMajority, RoleMajority, RoleMinority, RoleBlank, RoleMajority, RoleMajority)

	for round := 1; round <= 50; round++ {
		order := GenerateTurnOrder(players, round, rng)
		assert.Len(t, order, len(players))

		sorted := append([]string(nil), order...)
		sort.Strings(sorted)
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, sorted)
	}
}

func TestGenerateTurnOrder_BlankNeverFirstInRoundOne(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	players := candidates(RoleBlank, RoleMajority, RoleMinority, RoleMajority)

	for i := 0; i < 500; i++ {
		order := GenerateTurnOrder(players, 1, rng)
		assert.NotEqual(t, "a", order[0])
	}
}

func TestGenerateTurnOrder_BlankCanOpenLaterRounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	players := candidates(RoleBlank, RoleMajority, RoleMinority)

	first := false
	for i := 0; i < 500 && !first; i++ {
		first = GenerateTurnOrder(players, 2, rng)[0] == "a"
	}
	assert.True(t, first)
}

func TestGenerateTurnOrder_Edges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Nil(t, GenerateTurnOrder(nil, 1, rng))
	assert.Equal(t, []string{"a"}, GenerateTurnOrder(candidates(RoleBlank), 1, rng))

	// 全部为白板时无法避免
	order := GenerateTurnOrder(candidates(RoleBlank, RoleBlank), 1, rng)
	assert.Len(t, order, 2)
}

func TestGenerateTurnOrder_Deterministic(t *testing.T) {
	players := candidates(RoleMajority, RoleMinority, RoleMajority, RoleMajority)
	a := GenerateTurnOrder(players, 1, rand.New(rand.NewSource(99)))
	b := GenerateTurnOrder(players, 1, rand.New(rand.NewSource(99)))
	assert.Equal(t, a, b)
}

func TestHasSameRoleRun(t *testing.T) {
	assert.True(t, hasSameRoleRun(candidates(RoleMajority, RoleMajority, RoleMajority, RoleMinority), 3))
	assert.False(t, hasSameRoleRun(candidates(RoleMajority, RoleMajority, RoleMinority, RoleMajority), 3))
	assert.False(t, hasSameRoleRun(nil, 3))
}
