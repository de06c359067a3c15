package game

import (
	"fmt"
	"sort"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// PhaseEvent 触发阶段切换的事件
type PhaseEvent string

const (
	EventStartGame    PhaseEvent = "start_game"
	EventSpeakingDone PhaseEvent = "speaking_done"
	EventBeginVoting  PhaseEvent = "begin_voting"
	EventRevote       PhaseEvent = "revote"
	EventTallyDone    PhaseEvent = "tally_done"
	EventNextRound    PhaseEvent = "next_round"
	EventGameOver     PhaseEvent = "game_over"
	EventReset        PhaseEvent = "reset"
)

// PhaseTransition 阶段转换定义
type PhaseTransition struct {
	From  Phase
	Event PhaseEvent
	To    Phase
	// Guard 同一事件有多个目标时用于选择，nil表示总是匹配
	Guard func(s *RoomState) bool
}

// PhaseMachine 阶段转换表，表中没有的转换一律拒绝
type PhaseMachine struct {
	transitions map[string][]PhaseTransition
}

var allPhases = []Phase{
	PhaseNone, PhaseDescription, PhaseDiscussion,
	PhaseVoting, PhaseElimination, PhaseGameOver,
}

// defaultPhaseMachine 全局共享，只读
var defaultPhaseMachine = NewPhaseMachine()

// NewPhaseMachine 创建阶段转换表
func NewPhaseMachine() *PhaseMachine {
	pm := &PhaseMachine{transitions: make(map[string][]PhaseTransition)}
	pm.initTransitions()
	return pm
}

// initTransitions 初始化阶段转换规则
func (pm *PhaseMachine) initTransitions() {
	// 等待 -> 描述（开局）
	pm.addTransition(PhaseTransition{From: PhaseNone, Event: EventStartGame, To: PhaseDescription})

	// 描述 -> 讨论（开启讨论环节）
	pm.addTransition(PhaseTransition{
		From:  PhaseDescription,
		Event: EventSpeakingDone,
		To:    PhaseDiscussion,
		Guard: func(s *RoomState) bool { return s.Settings.DiscussionEnabled },
	})

	// 描述 -> 投票（未开启讨论环节）
	pm.addTransition(PhaseTransition{
		From:  PhaseDescription,
		Event: EventSpeakingDone,
		To:    PhaseVoting,
		Guard: func(s *RoomState) bool { return !s.Settings.DiscussionEnabled },
	})

	// 讨论 -> 投票
	pm.addTransition(PhaseTransition{From: PhaseDiscussion, Event: EventBeginVoting, To: PhaseVoting})

	// 投票 -> 投票（平票重投）
	pm.addTransition(PhaseTransition{From: PhaseVoting, Event: EventRevote, To: PhaseVoting})

	// 投票 -> 出局结算
	pm.addTransition(PhaseTransition{From: PhaseVoting, Event: EventTallyDone, To: PhaseElimination})

	// 出局结算 -> 下一轮描述
	pm.addTransition(PhaseTransition{From: PhaseElimination, Event: EventNextRound, To: PhaseDescription})

	// 出局结算 -> 游戏结束
	pm.addTransition(PhaseTransition{From: PhaseElimination, Event: EventGameOver, To: PhaseGameOver})

	// 中途有人离开导致胜负已分
	for _, from := range []Phase{PhaseDescription, PhaseDiscussion, PhaseVoting} {
		pm.addTransition(PhaseTransition{From: from, Event: EventGameOver, To: PhaseGameOver})
	}

	// 任何阶段 -> 重置
	for _, from := range allPhases {
		pm.addTransition(PhaseTransition{From: from, Event: EventReset, To: PhaseNone})
	}
}

// addTransition 添加阶段转换
func (pm *PhaseMachine) addTransition(t PhaseTransition) {
	key := pm.transitionKey(t.From, t.Event)
	pm.transitions[key] = append(pm.transitions[key], t)
}

// transitionKey 生成转换键
func (pm *PhaseMachine) transitionKey(phase Phase, event PhaseEvent) string {
	return fmt.Sprintf("%s:%s", phase, event)
}

// Next 计算目标阶段，不修改状态
func (pm *PhaseMachine) Next(s *RoomState, event PhaseEvent) (Phase, error) {
	for _, t := range pm.transitions[pm.transitionKey(s.Phase, event)] {
		if t.Guard == nil || t.Guard(s) {
			return t.To, nil
		}
	}
	return s.Phase, apperrors.Newf(apperrors.ErrInvalidTransition, "阶段=%s, 事件=%s, 可用事件=%v", s.Phase, event, pm.ValidEvents(s))
}

// Fire 执行转换并写入状态
func (pm *PhaseMachine) Fire(s *RoomState, event PhaseEvent) (from, to Phase, err error) {
	from = s.Phase
	to, err = pm.Next(s, event)
	if err != nil {
		return from, from, err
	}
	s.Phase = to
	return from, to, nil
}

// CanFire 检查事件在当前阶段是否有效
func (pm *PhaseMachine) CanFire(s *RoomState, event PhaseEvent) bool {
	_, err := pm.Next(s, event)
	return err == nil
}

// ValidEvents 当前阶段下的有效事件
func (pm *PhaseMachine) ValidEvents(s *RoomState) []PhaseEvent {
	seen := make(map[PhaseEvent]bool)
	prefix := string(s.Phase) + ":"

	var events []PhaseEvent
	for key, ts := range pm.transitions {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		for _, t := range ts {
			if (t.Guard == nil || t.Guard(s)) && !seen[t.Event] {
				seen[t.Event] = true
				events = append(events, t.Event)
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}
