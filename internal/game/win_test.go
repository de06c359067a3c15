package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stateWithRoles(roles ...Role) *RoomState {
	s := &RoomState{}
	for i, r := range roles {
		s.Players = append(s.Players, Player{ID: string(rune('a' + i)), Role: r})
	}
	return s
}

func TestEvaluateWinCondition(t *testing.T) {
	testCases := []struct {
		name     string
		roles    []Role
		expected Winner
	}{
		{"卧底全部出局", []Role{RoleMajority, RoleMajority}, WinnerMajority},
		{"卧底与平民人数相等", []Role{RoleMajority, RoleMinority}, WinnerMinority},
		{"卧底多于平民", []Role{RoleMajority, RoleMinority, RoleMinority}, WinnerMinority},
		{"对局继续", []Role{RoleMajority, RoleMajority, RoleMinority}, WinnerNone},
		{"白板存活时对局继续", []Role{RoleMajority, RoleMajority, RoleBlank}, WinnerNone},
		{"只剩白板", []Role{RoleBlank}, WinnerBlank},
		{"卧底优先于白板", []Role{RoleMinority, RoleBlank}, WinnerMinority},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EvaluateWinCondition(stateWithRoles(tc.roles...)))
		})
	}
}

func TestEvaluateWinCondition_IgnoresEliminated(t *testing.T) {
	s := stateWithRoles(RoleMajority, RoleMajority, RoleMinority)
	s.Players[2].IsEliminated = true
	assert.Equal(t, WinnerMajority, EvaluateWinCondition(s))
}

func TestEvaluateWinCondition_BlankGuessed(t *testing.T) {
	s := stateWithRoles(RoleMajority, RoleMajority, RoleMinority)
	s.BlankGuessed = true
	assert.Equal(t, WinnerBlank, EvaluateWinCondition(s))
}
