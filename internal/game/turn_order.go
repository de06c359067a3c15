package game

import (
	"math/rand"
)

// TurnCandidate 参与排序的玩家
type TurnCandidate struct {
	ID   string
	Role Role
}

const (
	adjacentSwapChance  = 0.5
	smoothingSwapChance = 0.2
	maxSameRoleRun      = 3
)

// GenerateTurnOrder 生成一轮的发言顺序
//
// 结果总是输入玩家的一个排列。第一轮白板不会第一个发言（只要存在非白板玩家）；
// 同身份连坐的打散只是尽力而为。
func GenerateTurnOrder(players []TurnCandidate, round int, rng *rand.Rand) []string {
	n := len(players)
	if n == 0 {
		return nil
	}

	order := make([]TurnCandidate, n)
	copy(order, players)

	// 洗牌
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	// 随机旋转
	offset := rng.Intn(n)
	order = append(order[offset:], order[:offset]...)

	// 相邻交换
	for i := 0; i+1 < n; i++ {
		if rng.Float64() < adjacentSwapChance {
			order[i], order[i+1] = order[i+1], order[i]
		}
	}

	if round == 1 {
		keepBlankOffFirst(order, rng)
	}

	if hasSameRoleRun(order, maxSameRoleRun) {
		for i := 0; i+1 < n; i++ {
			if rng.Float64() >= smoothingSwapChance {
				continue
			}
			if round == 1 && i == 0 && order[1].Role == RoleBlank {
				continue
			}
			order[i], order[i+1] = order[i+1], order[i]
		}
	}

	ids := make([]string, n)
	for i, c := range order {
		ids[i] = c.ID
	}
	return ids
}

// keepBlankOffFirst 首位是白板时与随机一个非白板玩家互换
func keepBlankOffFirst(order []TurnCandidate, rng *rand.Rand) {
	if len(order) < 2 || order[0].Role != RoleBlank {
		return
	}

	var swappable []int
	for i := 1; i < len(order); i++ {
		if order[i].Role != RoleBlank {
			swappable = append(swappable, i)
		}
	}
	if len(swappable) == 0 {
		return
	}

	j := swappable[rng.Intn(len(swappable))]
	order[0], order[j] = order[j], order[0]
}

// hasSameRoleRun 是否存在长度不小于runLen的同身份连续段
func hasSameRoleRun(order []TurnCandidate, runLen int) bool {
	run := 1
	for i := 1; i < len(order); i++ {
		if order[i].Role == order[i-1].Role {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
