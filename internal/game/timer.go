package game

import (
	"time"
)

// Clock 时间源，测试中替换为可手动推进的实现
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的定时器句柄
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock 系统时钟
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerKind 定时器类型
type timerKind string

const (
	timerNone       timerKind = ""
	timerTurn       timerKind = "turn"       // 发言超时
	timerDiscussion timerKind = "discussion" // 讨论结束
	timerGuess      timerKind = "guess"      // 白板猜词超时
)

// timerToken 定时器身份，触发时与当前状态推导出的身份比较，不一致即为过期
type timerToken struct {
	Kind     timerKind
	Game     int
	Round    int
	Turn     int
	Deadline time.Time
}

// expectedTimer 由已提交的状态推导应当挂起的定时器
func expectedTimer(s *RoomState) timerToken {
	if s.Status != StatusInProgress {
		return timerToken{}
	}
	round := s.CurrentRound()
	if round == nil {
		return timerToken{}
	}

	tok := timerToken{Game: s.GameNumber, Round: round.Number}
	switch s.Phase {
	case PhaseDescription:
		if round.SpeakingDone() {
			return timerToken{}
		}
		tok.Kind = timerTurn
		tok.Turn = round.TurnIndex
		tok.Deadline = s.Deadline
	case PhaseDiscussion:
		tok.Kind = timerDiscussion
		tok.Deadline = s.Deadline
	case PhaseElimination:
		if s.Guess == nil {
			return timerToken{}
		}
		tok.Kind = timerGuess
		tok.Deadline = s.Guess.Deadline
	default:
		return timerToken{}
	}
	return tok
}

// sameTimer 比较身份时忽略截止时间的单调时钟部分
func sameTimer(a, b timerToken) bool {
	return a.Kind == b.Kind && a.Game == b.Game && a.Round == b.Round &&
		a.Turn == b.Turn && a.Deadline.Equal(b.Deadline)
}
