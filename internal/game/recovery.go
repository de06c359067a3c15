package game

import (
	"context"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"go.uber.org/zap"
)

// RecoveryManager 房间恢复管理器
type RecoveryManager struct {
	logger    *zap.Logger
	persister RoomPersister
	clock     Clock
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(logger *zap.Logger, persister RoomPersister, clock Clock) *RecoveryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &RecoveryManager{
		logger:    logger,
		persister: persister,
		clock:     clock,
	}
}

// RecoverRoom 从持久化存储恢复单个房间
func (rm *RecoveryManager) RecoverRoom(ctx context.Context, code string) (*RoomState, error) {
	state, err := rm.persister.Load(ctx, code)
	if err != nil {
		return nil, err
	}

	// 检查房间是否过期
	if rm.clock.Now().After(state.ExpiresAt) {
		rm.logger.Warn("房间已过期",
			zap.String("room", code),
			zap.Time("expires_at", state.ExpiresAt))

		if err := rm.persister.Delete(ctx, code); err != nil {
			rm.logger.Error("删除过期房间失败", zap.String("room", code), zap.Error(err))
		}
		return nil, apperrors.New(apperrors.ErrRoomNotFound, code)
	}

	if err := rm.restore(ctx, state); err != nil {
		return nil, err
	}

	rm.logger.Info("房间恢复成功",
		zap.String("room", code),
		zap.String("status", string(state.Status)),
		zap.String("phase", string(state.Phase)))
	return state, nil
}

// RecoverAll 恢复全部未过期房间，单个房间失败只记录日志
func (rm *RecoveryManager) RecoverAll(ctx context.Context) ([]*RoomState, error) {
	states, err := rm.persister.ListActive(ctx, rm.clock.Now())
	if err != nil {
		return nil, err
	}

	recovered := make([]*RoomState, 0, len(states))
	for _, s := range states {
		if err := rm.restore(ctx, s); err != nil {
			rm.logger.Error("恢复房间失败", zap.String("room", s.Code), zap.Error(err))
			continue
		}
		recovered = append(recovered, s)
	}
	return recovered, nil
}

// restore 执行恢复策略，状态有变化时写回存储
func (rm *RecoveryManager) restore(ctx context.Context, s *RoomState) error {
	strategy := rm.getRecoveryStrategy(s.Status)
	if !strategy(s) {
		return nil
	}
	s.Version++
	return rm.persister.Save(ctx, s)
}

// getRecoveryStrategy 根据房间状态获取恢复策略
func (rm *RecoveryManager) getRecoveryStrategy(status RoomStatus) func(*RoomState) bool {
	strategies := map[RoomStatus]func(*RoomState) bool{
		StatusWaiting:    rm.recoverWaiting,
		StatusInProgress: rm.recoverInProgress,
		StatusCompleted:  rm.recoverCompleted,
	}

	if strategy, exists := strategies[status]; exists {
		return strategy
	}
	return rm.recoverToWaiting
}

// recoverWaiting 等待中的房间：连接都已断开，等待玩家重连
func (rm *RecoveryManager) recoverWaiting(s *RoomState) bool {
	return markDisconnected(s)
}

// recoverInProgress 对局中的房间：定时器由房间按截止时间重新挂起
func (rm *RecoveryManager) recoverInProgress(s *RoomState) bool {
	changed := markDisconnected(s)

	round := s.CurrentRound()
	if round == nil {
		rm.logger.Warn("对局中的房间缺少轮次，重置到等待", zap.String("room", s.Code))
		return rm.recoverToWaiting(s)
	}

	// 缺少截止时间的发言或讨论阶段从现在重新计时
	if (s.Phase == PhaseDescription && !round.SpeakingDone()) || s.Phase == PhaseDiscussion {
		if s.Deadline.IsZero() {
			s.Deadline = rm.clock.Now().Add(s.Settings.RoundTime())
			changed = true
		}
	}
	if s.Phase == PhaseElimination && s.Guess == nil {
		rm.logger.Warn("出局阶段没有猜词窗口，重置到等待", zap.String("room", s.Code))
		return rm.recoverToWaiting(s)
	}
	return changed
}

// recoverCompleted 已结束的房间
func (rm *RecoveryManager) recoverCompleted(s *RoomState) bool {
	return markDisconnected(s)
}

// recoverToWaiting 默认策略：丢弃对局进度，回到等待状态
func (rm *RecoveryManager) recoverToWaiting(s *RoomState) bool {
	rm.logger.Warn("使用默认恢复策略，重置到等待状态",
		zap.String("room", s.Code),
		zap.String("from_status", string(s.Status)))

	kept := s.Players[:0]
	for _, p := range s.Players {
		if p.Left {
			continue
		}
		p.Role = RoleUnassigned
		p.SecretWord = ""
		p.IsEliminated = false
		p.IsReady = false
		p.Connected = false
		kept = append(kept, p)
	}
	s.Players = kept
	if len(s.Players) > 0 && s.Player(s.HostID) == nil {
		s.HostID = s.Players[0].ID
	}

	s.Status = StatusWaiting
	s.Phase = PhaseNone
	s.Rounds = nil
	s.Words = WordPair{}
	s.Winner = WinnerNone
	s.UsedClues = nil
	s.VoteRound = 0
	s.Candidates = nil
	s.Guess = nil
	s.Deadline = time.Time{}
	s.BlankGuessed = false
	return true
}

// CleanupExpired 删除存储中已过期的房间
func (rm *RecoveryManager) CleanupExpired(ctx context.Context) (int64, error) {
	return rm.persister.DeleteExpired(ctx, rm.clock.Now())
}

func markDisconnected(s *RoomState) bool {
	changed := false
	for i := range s.Players {
		if s.Players[i].Connected {
			s.Players[i].Connected = false
			changed = true
		}
	}
	return changed
}
