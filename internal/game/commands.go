package game

import (
	"context"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// CommandType 入站指令类型
type CommandType string

const (
	CmdCreateRoom       CommandType = "create_room"
	CmdJoin             CommandType = "join"
	CmdLeave            CommandType = "leave"
	CmdSetReady         CommandType = "set_ready"
	CmdUpdateSettings   CommandType = "update_settings"
	CmdStartGame        CommandType = "start_game"
	CmdSubmitClue       CommandType = "submit_clue"
	CmdBeginVoting      CommandType = "begin_voting"
	CmdSubmitVote       CommandType = "submit_vote"
	CmdSubmitBlankGuess CommandType = "submit_blank_guess"
	CmdResetRoom        CommandType = "reset_room"

	// CmdReconnect 和 CmdDisconnect 由网关在连接建立和断开时发出，客户端不能直接发送
	CmdReconnect  CommandType = "reconnect"
	CmdDisconnect CommandType = "disconnect"
)

// Command 入站指令，PlayerID 为发起人
type Command struct {
	Type        CommandType `json:"type"`
	PlayerID    string      `json:"playerId"`
	DisplayName string      `json:"displayName,omitempty"`
	AvatarRef   string      `json:"avatarRef,omitempty"`
	Ready       bool        `json:"ready,omitempty"`
	Settings    *Settings   `json:"settings,omitempty"`
	Text        string      `json:"text,omitempty"` // 描述或猜词
	TargetID    string      `json:"targetId,omitempty"`
}

// Handle 分发指令到对应操作
func (r *Room) Handle(ctx context.Context, cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdJoin:
		return r.Join(ctx, cmd.PlayerID, cmd.DisplayName, cmd.AvatarRef)
	case CmdLeave:
		return r.Leave(ctx, cmd.PlayerID)
	case CmdSetReady:
		return r.SetReady(ctx, cmd.PlayerID, cmd.Ready)
	case CmdUpdateSettings:
		if cmd.Settings == nil {
			return nil, apperrors.New(apperrors.ErrInvalidSettings, "缺少settings")
		}
		return r.UpdateSettings(ctx, cmd.PlayerID, *cmd.Settings)
	case CmdStartGame:
		return r.StartGame(ctx, cmd.PlayerID)
	case CmdSubmitClue:
		return r.SubmitClue(ctx, cmd.PlayerID, cmd.Text)
	case CmdBeginVoting:
		return r.BeginVoting(ctx, cmd.PlayerID)
	case CmdSubmitVote:
		return r.SubmitVote(ctx, cmd.PlayerID, cmd.TargetID)
	case CmdSubmitBlankGuess:
		return r.SubmitBlankGuess(ctx, cmd.PlayerID, cmd.Text)
	case CmdResetRoom:
		return r.Reset(ctx, cmd.PlayerID)
	case CmdReconnect:
		return r.Reconnect(ctx, cmd.PlayerID)
	case CmdDisconnect:
		return r.Disconnect(ctx, cmd.PlayerID)
	default:
		return nil, apperrors.New(apperrors.ErrUnknownCommand, string(cmd.Type))
	}
}
