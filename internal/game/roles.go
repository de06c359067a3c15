package game

import (
	"math/rand"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// RoleCounts 各身份人数
type RoleCounts struct {
	Majority int `json:"majority"`
	Minority int `json:"minority"`
	Blank    int `json:"blank"`
}

// Special 非平民人数
func (rc RoleCounts) Special() int {
	return rc.Minority + rc.Blank
}

// Assignment 单个玩家的身份和词语
type Assignment struct {
	Role Role   `json:"role"`
	Word string `json:"word,omitempty"`
}

// MaxMinority 按人数给出的卧底上限
func MaxMinority(players int) int {
	switch {
	case players <= 5:
		return 1
	case players <= 8:
		return 2
	case players <= 11:
		return 3
	default:
		return 4
	}
}

// MaxBlank 按人数给出的白板上限
func MaxBlank(players int) int {
	switch {
	case players <= 4:
		return 0
	case players <= 8:
		return 1
	case players <= 12:
		return 2
	default:
		return 3
	}
}

// ClampRoleCounts 把请求的身份人数收敛到合法范围
//
// 平民至少占 ceil(n/2)，超出时先减白板再减卧底；两者都为0时强制1个卧底。
func ClampRoleCounts(players, minority, blank int) RoleCounts {
	minority = clamp(minority, 0, MaxMinority(players))
	blank = clamp(blank, 0, MaxBlank(players))

	specialCap := players / 2
	for minority+blank > specialCap {
		if blank > 0 {
			blank--
		} else {
			minority--
		}
	}
	if minority == 0 && blank == 0 {
		minority = 1
	}

	return RoleCounts{
		Majority: players - minority - blank,
		Minority: minority,
		Blank:    blank,
	}
}

// AssignRoles 洗牌后依次分配白板、卧底，其余为平民
func AssignRoles(ids []string, minorityReq, blankReq int, words WordPair, rng *rand.Rand) (map[string]Assignment, RoleCounts, error) {
	if len(ids) < MinPlayers {
		return nil, RoleCounts{}, apperrors.Newf(apperrors.ErrNotEnoughPlayers, "至少需要%d名玩家，当前%d名", MinPlayers, len(ids))
	}

	counts := ClampRoleCounts(len(ids), minorityReq, blankReq)

	shuffled := append([]string(nil), ids...)
	shuffle(shuffled, rng)

	result := make(map[string]Assignment, len(shuffled))
	for i, id := range shuffled {
		switch {
		case i < counts.Blank:
			result[id] = Assignment{Role: RoleBlank}
		case i < counts.Blank+counts.Minority:
			result[id] = Assignment{Role: RoleMinority, Word: words.Minority}
		default:
			result[id] = Assignment{Role: RoleMajority, Word: words.Majority}
		}
	}

	return result, counts, nil
}

// shuffle Fisher-Yates 洗牌
func shuffle(ids []string, rng *rand.Rand) {
	for i := len(ids) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
