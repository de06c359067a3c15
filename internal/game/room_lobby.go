package game

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// Join 加入房间
func (r *Room) Join(ctx context.Context, playerID, displayName, avatarRef string) ([]Event, error) {
	name := strings.TrimSpace(displayName)
	return r.apply(ctx, "join", func(t *txn) error {
		s := t.s
		if playerID == "" {
			return apperrors.New(apperrors.ErrInvalidParam, "缺少玩家ID")
		}
		if name == "" {
			return apperrors.New(apperrors.ErrEmptyName)
		}
		if s.Status != StatusWaiting {
			return apperrors.New(apperrors.ErrGameAlreadyStarted)
		}
		if s.Player(playerID) != nil {
			return apperrors.New(apperrors.ErrAlreadyJoined, playerID)
		}
		if len(s.Players) >= s.Settings.MaxPlayers {
			return apperrors.Newf(apperrors.ErrRoomFull, "上限%d人", s.Settings.MaxPlayers)
		}
		for _, p := range s.Players {
			if strings.EqualFold(p.DisplayName, name) {
				return apperrors.New(apperrors.ErrNameTaken, name)
			}
		}

		s.Players = append(s.Players, Player{
			ID:          playerID,
			DisplayName: name,
			AvatarRef:   avatarRef,
			Connected:   true,
			JoinedAt:    t.now,
		})
		t.emitRoomUpdated()
		return nil
	})
}

// Leave 离开房间
//
// 等待或已结束时直接移出名单；对局中标记为离开并强制出局，不公开身份。
// 没有在场玩家时房间被销毁。
func (r *Room) Leave(ctx context.Context, playerID string) ([]Event, error) {
	return r.apply(ctx, "leave", func(t *txn) error {
		s := t.s
		p := s.Player(playerID)
		if p == nil || p.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
		}

		if s.Status != StatusInProgress {
			s.removePlayer(playerID)
			if len(s.PresentPlayers()) == 0 {
				t.closeEmpty(playerID)
				return nil
			}
			t.emit(EventPlayerLeft, PlayerLeftPayload{PlayerID: playerID, NewHostID: t.reassignHost(playerID)})
			t.emitRoomUpdated()
			return nil
		}

		wasActive := !p.IsEliminated
		p.Left = true
		p.Connected = false
		p.IsReady = false
		p.IsEliminated = true

		if len(s.PresentPlayers()) == 0 {
			t.closeEmpty(playerID)
			return nil
		}

		t.emit(EventPlayerLeft, PlayerLeftPayload{
			PlayerID:   playerID,
			NewHostID:  t.reassignHost(playerID),
			Eliminated: wasActive,
		})

		// 出局白板离开视为猜错
		if s.Guess != nil && s.Guess.PlayerID == playerID {
			return t.closeGuess(playerID, "", false, false)
		}
		if !wasActive {
			t.emitRoomUpdated()
			return nil
		}
		return t.afterForcedElimination(playerID)
	})
}

// afterForcedElimination 中途离开后按当前阶段收尾
func (t *txn) afterForcedElimination(playerID string) error {
	s := t.s
	round := s.CurrentRound()

	// 离开不占用本轮的出局名额，只清掉相关选票
	if round != nil {
		delete(round.Votes, playerID)
		for voter, target := range round.Votes {
			if target == playerID {
				delete(round.Votes, voter)
			}
		}
	}
	if len(s.Candidates) > 0 {
		s.Candidates = removeString(s.Candidates, playerID)
		// 候选人不足两人时重投无法进行，本次投票向所有存活玩家重新开放
		if len(s.Candidates) < 2 {
			s.Candidates = nil
			if round != nil && s.Phase == PhaseVoting {
				round.Votes = make(map[string]string)
				round.Tally = nil
			}
		}
	}

	// 猜词窗口打开时，胜负在窗口关闭后统一判定
	if s.Guess == nil {
		if w := EvaluateWinCondition(s); w != WinnerNone {
			return t.gameOver(w)
		}
	}

	switch s.Phase {
	case PhaseDescription:
		if round != nil && round.CurrentSpeaker() == playerID {
			return t.advanceTurn()
		}
	case PhaseVoting:
		t.emitRoomUpdated()
		return t.maybeResolveVotes()
	}
	t.emitRoomUpdated()
	return nil
}

// reassignHost 房主离开时移交给最早加入的在场玩家
func (t *txn) reassignHost(leaving string) string {
	s := t.s
	if s.HostID != leaving {
		return ""
	}
	for _, p := range s.PresentPlayers() {
		if p.ID != leaving {
			s.HostID = p.ID
			return p.ID
		}
	}
	return ""
}

func (t *txn) closeEmpty(lastPlayer string) {
	t.destroy = true
	t.emit(EventPlayerLeft, PlayerLeftPayload{PlayerID: lastPlayer})
	t.emit(EventRoomClosed, RoomClosedPayload{Reason: "empty"})
}

// Reconnect 玩家重新连上房间，对局中重发本人的身份和词语
func (r *Room) Reconnect(ctx context.Context, playerID string) ([]Event, error) {
	return r.apply(ctx, "reconnect", func(t *txn) error {
		s := t.s
		p := s.Player(playerID)
		if p == nil || p.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
		}
		if s.Status != StatusWaiting && p.Role != RoleUnassigned {
			t.emitTo(p.ID, EventRoleAssigned, RoleAssignedPayload{Role: p.Role, Word: p.SecretWord})
		}
		// 本来就在线时只给本人补发快照
		if p.Connected {
			t.readOnly = true
			t.emitTo(p.ID, EventRoomUpdated, s.View())
			return nil
		}
		p.Connected = true
		t.emitRoomUpdated()
		return nil
	})
}

// Disconnect 玩家最后一条连接断开，保留座位等待重连
func (r *Room) Disconnect(ctx context.Context, playerID string) ([]Event, error) {
	return r.apply(ctx, "disconnect", func(t *txn) error {
		p := t.s.Player(playerID)
		if p == nil || p.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
		}
		if !p.Connected {
			t.readOnly = true
			return nil
		}
		p.Connected = false
		t.emitRoomUpdated()
		return nil
	})
}

// SetReady 设置准备状态
func (r *Room) SetReady(ctx context.Context, playerID string, ready bool) ([]Event, error) {
	return r.apply(ctx, "set_ready", func(t *txn) error {
		s := t.s
		p := s.Player(playerID)
		if p == nil || p.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
		}
		if s.Status != StatusWaiting {
			return apperrors.New(apperrors.ErrWrongPhase, "只能在等待阶段准备")
		}
		p.IsReady = ready
		t.emitRoomUpdated()
		return nil
	})
}

// UpdateSettings 房主修改设置，所有人的准备状态被清除
func (r *Room) UpdateSettings(ctx context.Context, byID string, settings Settings) ([]Event, error) {
	return r.apply(ctx, "update_settings", func(t *txn) error {
		s := t.s
		if !s.IsHost(byID) {
			return apperrors.New(apperrors.ErrNotHost)
		}
		if s.Status != StatusWaiting {
			return apperrors.New(apperrors.ErrGameAlreadyStarted)
		}

		next := settings.normalized().withDefaults(s.Settings)
		if err := next.Validate(t.words); err != nil {
			return err
		}
		if next.MaxPlayers < len(s.Players) {
			return apperrors.Newf(apperrors.ErrRosterExceedsLimit, "当前%d人", len(s.Players))
		}

		s.Settings = next
		for i := range s.Players {
			s.Players[i].IsReady = false
		}
		t.emitRoomUpdated()
		return nil
	})
}

// Reset 房主重置房间，回到等待状态并保留名单
func (r *Room) Reset(ctx context.Context, byID string) ([]Event, error) {
	return r.apply(ctx, "reset_room", func(t *txn) error {
		s := t.s
		if !s.IsHost(byID) {
			return apperrors.New(apperrors.ErrNotHost)
		}
		if err := t.fire(EventReset); err != nil {
			return err
		}

		kept := s.Players[:0]
		for _, p := range s.Players {
			if p.Left {
				continue
			}
			p.IsReady = false
			p.Role = RoleUnassigned
			p.SecretWord = ""
			p.IsEliminated = false
			kept = append(kept, p)
		}
		s.Players = kept

		s.Status = StatusWaiting
		s.Rounds = nil
		s.Words = WordPair{}
		s.Winner = WinnerNone
		s.StartedAt = time.Time{}
		s.UsedClues = nil
		s.VoteRound = 0
		s.Candidates = nil
		s.Deadline = time.Time{}
		s.Guess = nil
		s.BlankGuessed = false

		t.emitRoomUpdated()
		return nil
	})
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
