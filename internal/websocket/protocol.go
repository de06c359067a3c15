package websocket

import (
	"encoding/json"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/game"
)

// Message WebSocket消息，收发共用
type Message struct {
	Type      string          `json:"type"`
	RoomCode  string          `json:"roomCode,omitempty"`
	Version   int64           `json:"version,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// 系统消息类型
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// clientCommands 客户端可以发送的指令，加入和建房走HTTP
var clientCommands = map[string]game.CommandType{
	string(game.CmdLeave):            game.CmdLeave,
	string(game.CmdSetReady):         game.CmdSetReady,
	string(game.CmdUpdateSettings):   game.CmdUpdateSettings,
	string(game.CmdStartGame):        game.CmdStartGame,
	string(game.CmdSubmitClue):       game.CmdSubmitClue,
	string(game.CmdBeginVoting):      game.CmdBeginVoting,
	string(game.CmdSubmitVote):       game.CmdSubmitVote,
	string(game.CmdSubmitBlankGuess): game.CmdSubmitBlankGuess,
	string(game.CmdResetRoom):        game.CmdResetRoom,
}

// commandData 指令参数
type commandData struct {
	Ready    bool           `json:"ready"`
	Settings *game.Settings `json:"settings"`
	Text     string         `json:"text"`
	Guess    string         `json:"guess"`
	TargetID string         `json:"targetId"`
}

// decodeMessage 解析客户端消息
func decodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	if msg.Type == "" {
		return nil, apperrors.New(apperrors.ErrMessageFormat, "消息类型不能为空")
	}
	return &msg, nil
}

// toCommand 把消息转换为引擎指令，发起人固定为连接绑定的玩家
func toCommand(msg *Message, playerID string) (game.Command, error) {
	typ, ok := clientCommands[msg.Type]
	if !ok {
		return game.Command{}, apperrors.New(apperrors.ErrUnknownCommand, msg.Type)
	}

	var data commandData
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return game.Command{}, apperrors.Wrap(err, apperrors.ErrMessageFormat)
		}
	}

	cmd := game.Command{
		Type:     typ,
		PlayerID: playerID,
		Ready:    data.Ready,
		Settings: data.Settings,
		Text:     data.Text,
		TargetID: data.TargetID,
	}
	if typ == game.CmdSubmitBlankGuess && cmd.Text == "" {
		cmd.Text = data.Guess
	}
	return cmd, nil
}

// encodeEvent 把引擎事件编码为下行消息
func encodeEvent(e game.Event, now time.Time) ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{
		Type:      string(e.Type),
		RoomCode:  e.RoomCode,
		Version:   e.Version,
		Data:      data,
		Timestamp: now.UnixMilli(),
	})
}
