package game

// EvaluateWinCondition 根据当前存活身份判定胜负
//
// 白板猜中词语直接获胜；其余按平民、卧底、白板的顺序检查，第一个满足的条件胜出。
// 只剩白板存活时白板获胜。
func EvaluateWinCondition(s *RoomState) Winner {
	if s.BlankGuessed {
		return WinnerBlank
	}

	rc := s.RoleCount()
	switch {
	case rc.Minority == 0 && rc.Blank == 0:
		return WinnerMajority
	case rc.Minority > 0 && rc.Minority >= rc.Majority:
		return WinnerMinority
	case rc.Blank > 0 && rc.Majority == 0:
		return WinnerBlank
	}
	return WinnerNone
}
