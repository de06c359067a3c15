package game

import (
	"sort"
)

// TieBreakPolicy 平票处理策略
type TieBreakPolicy string

const (
	// TieBreakRevote 平票者之间重新投票，超过次数上限则本轮无人出局
	TieBreakRevote TieBreakPolicy = "revote"
	// TieBreakLowestID 平票时ID字典序最小者出局
	TieBreakLowestID TieBreakPolicy = "lowest_id"
)

// TallyResult 计票结果
type TallyResult struct {
	Counts     map[string]int `json:"counts"`
	Leaders    []string       `json:"leaders"` // 得票最多者，按ID排序
	MaxVotes   int            `json:"maxVotes"`
	Eliminated string         `json:"eliminated,omitempty"`
	Tied       bool           `json:"tied"`
	NoVotes    bool           `json:"noVotes"`
}

// TallyVotes 统计有效票
//
// 投票人和被投票人都必须在active中。唯一最高票者为Eliminated；
// 平票时Eliminated为空、Tied为true，由调用方按策略处理。
func TallyVotes(votes map[string]string, active []string) TallyResult {
	isActive := make(map[string]bool, len(active))
	for _, id := range active {
		isActive[id] = true
	}

	res := TallyResult{Counts: make(map[string]int)}
	for voter, target := range votes {
		if isActive[voter] && isActive[target] {
			res.Counts[target]++
		}
	}

	if len(res.Counts) == 0 {
		res.NoVotes = true
		return res
	}

	for target, n := range res.Counts {
		switch {
		case n > res.MaxVotes:
			res.MaxVotes = n
			res.Leaders = []string{target}
		case n == res.MaxVotes:
			res.Leaders = append(res.Leaders, target)
		}
	}
	sort.Strings(res.Leaders)

	if len(res.Leaders) == 1 {
		res.Eliminated = res.Leaders[0]
	} else {
		res.Tied = true
	}
	return res
}

// BreakTie 按lowest_id策略选出出局者
func (r TallyResult) BreakTie() string {
	if r.Eliminated != "" {
		return r.Eliminated
	}
	if len(r.Leaders) == 0 {
		return ""
	}
	return r.Leaders[0]
}
