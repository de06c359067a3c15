package game

import (
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// EventType 对外事件类型
type EventType string

const (
	EventRoomUpdated      EventType = "room_updated"
	EventRoleAssigned     EventType = "role_assigned" // 仅发给本人
	EventTurnOrderUpdated EventType = "turn_order_updated"
	EventClueSubmitted    EventType = "clue_submitted"
	EventTurnAdvanced     EventType = "turn_advanced"
	EventTurnSkipped      EventType = "turn_skipped"
	EventPhaseChanged     EventType = "phase_changed"
	EventVoteSubmitted    EventType = "vote_submitted"
	EventVotingResult     EventType = "voting_result"
	EventBlankGuessResult EventType = "blank_guess_result"
	EventGameOverResult   EventType = "game_over"
	EventPlayerLeft       EventType = "player_left"
	EventRoomClosed       EventType = "room_closed"
	EventErrorOccurred    EventType = "error_occurred"
)

// Event 引擎产生的事件
type Event struct {
	Type      EventType   `json:"type"`
	RoomCode  string      `json:"roomCode"`
	Recipient string      `json:"-"` // 为空表示广播给房间所有人
	Version   int64       `json:"version"`
	Payload   interface{} `json:"data"`
}

// IsPrivate 是否为私有事件
func (e Event) IsPrivate() bool {
	return e.Recipient != ""
}

// Notifier 事件出口。在房间锁内调用，实现不能阻塞也不能回调房间
type Notifier interface {
	Publish(events []Event)
}

// NotifierFunc 函数适配
type NotifierFunc func(events []Event)

// Publish 实现Notifier
func (f NotifierFunc) Publish(events []Event) { f(events) }

type nopNotifier struct{}

func (nopNotifier) Publish([]Event) {}

// PlayerView 对外可见的玩家信息
type PlayerView struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	AvatarRef    string `json:"avatarRef,omitempty"`
	IsReady      bool   `json:"isReady"`
	IsHost       bool   `json:"isHost"`
	IsEliminated bool   `json:"isEliminated"`
	Connected    bool   `json:"connected"`
	Left         bool   `json:"left,omitempty"`
	Role         Role   `json:"role,omitempty"` // 出局或游戏结束后才公开
}

// RoundView 对外可见的轮次信息
type RoundView struct {
	Number         int                 `json:"number"`
	SpeakingOrder  []string            `json:"speakingOrder"`
	CurrentSpeaker string              `json:"currentSpeaker,omitempty"`
	Clues          []Clue              `json:"clues"`
	Skipped        []string            `json:"skipped,omitempty"`
	VotedCount     int                 `json:"votedCount"`
	Eliminated     *EliminatedSnapshot `json:"eliminated,omitempty"`
}

// RoomView 房间公开快照
type RoomView struct {
	Code       string       `json:"code"`
	HostID     string       `json:"hostId"`
	Status     RoomStatus   `json:"status"`
	Phase      Phase        `json:"phase"`
	Settings   Settings     `json:"settings"`
	Players    []PlayerView `json:"players"`
	Rounds     []RoundView  `json:"rounds,omitempty"`
	Candidates []string     `json:"candidates,omitempty"`
	Deadline   *time.Time   `json:"deadline,omitempty"`
	Winner     Winner       `json:"winner"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	Version    int64        `json:"version"`
}

// View 生成公开快照，不包含任何未公开的身份和词语
func (s *RoomState) View() RoomView {
	over := s.Status == StatusCompleted
	v := RoomView{
		Code:       s.Code,
		HostID:     s.HostID,
		Status:     s.Status,
		Phase:      s.Phase,
		Settings:   s.Settings,
		Candidates: append([]string(nil), s.Candidates...),
		Winner:     s.Winner,
		ExpiresAt:  s.ExpiresAt,
		Version:    s.Version,
	}
	// 自定义词语属于秘密
	v.Settings.CustomWords = nil

	for _, p := range s.Players {
		pv := PlayerView{
			ID:           p.ID,
			DisplayName:  p.DisplayName,
			AvatarRef:    p.AvatarRef,
			IsReady:      p.IsReady,
			IsHost:       p.ID == s.HostID,
			IsEliminated: p.IsEliminated,
			Connected:    p.Connected,
			Left:         p.Left,
		}
		if over || (p.IsEliminated && !p.Left) {
			pv.Role = p.Role
		}
		v.Players = append(v.Players, pv)
	}

	for i := range s.Rounds {
		r := &s.Rounds[i]
		v.Rounds = append(v.Rounds, RoundView{
			Number:         r.Number,
			SpeakingOrder:  append([]string(nil), r.SpeakingOrder...),
			CurrentSpeaker: r.CurrentSpeaker(),
			Clues:          append([]Clue(nil), r.Clues...),
			Skipped:        append([]string(nil), r.Skipped...),
			VotedCount:     len(r.Votes),
			Eliminated:     r.Eliminated,
		})
	}

	if !s.Deadline.IsZero() && (s.Phase == PhaseDescription || s.Phase == PhaseDiscussion) {
		d := s.Deadline
		v.Deadline = &d
	}
	return v
}

// RoleAssignedPayload 私有身份通知
type RoleAssignedPayload struct {
	Role Role   `json:"role"`
	Word string `json:"word,omitempty"`
}

// TurnOrderPayload 发言顺序
type TurnOrderPayload struct {
	Round          int       `json:"round"`
	SpeakingOrder  []string  `json:"speakingOrder"`
	CurrentSpeaker string    `json:"currentSpeaker"`
	Deadline       time.Time `json:"deadline"`
}

// CluePayload 描述提交
type CluePayload struct {
	Round    int    `json:"round"`
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

// TurnPayload 轮到下一位或超时跳过
type TurnPayload struct {
	Round    int        `json:"round"`
	PlayerID string     `json:"playerId"`
	Turn     int        `json:"turn"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// PhasePayload 阶段变化
type PhasePayload struct {
	From     Phase      `json:"from"`
	To       Phase      `json:"to"`
	Round    int        `json:"round"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// VoteSubmittedPayload 投票进度，不公开投给了谁
type VoteSubmittedPayload struct {
	VoterID  string `json:"voterId"`
	Voted    int    `json:"voted"`
	Required int    `json:"required"`
}

// VotingResultPayload 计票结果
type VotingResultPayload struct {
	Round       int                 `json:"round"`
	VoteRound   int                 `json:"voteRound"`
	Counts      map[string]int      `json:"counts"`
	Votes       map[string]string   `json:"votes"`
	Tied        bool                `json:"tied"`
	Revote      bool                `json:"revote"`
	Candidates  []string            `json:"candidates,omitempty"`
	Eliminated  *EliminatedSnapshot `json:"eliminated,omitempty"`
	GuessWindow *GuessWindow        `json:"guessWindow,omitempty"`
}

// BlankGuessPayload 白板猜词结果
type BlankGuessPayload struct {
	PlayerID string `json:"playerId"`
	Guess    string `json:"guess,omitempty"`
	Correct  bool   `json:"correct"`
	TimedOut bool   `json:"timedOut"`
}

// RevealEntry 结束后公开的身份
type RevealEntry struct {
	PlayerID     string `json:"playerId"`
	DisplayName  string `json:"displayName"`
	Role         Role   `json:"role"`
	Word         string `json:"word,omitempty"`
	IsEliminated bool   `json:"isEliminated"`
}

// GameOverPayload 游戏结束
type GameOverPayload struct {
	Winner Winner        `json:"winner"`
	Rounds int           `json:"rounds"`
	Words  WordPair      `json:"words"`
	Reveal []RevealEntry `json:"reveal"`
}

// PlayerLeftPayload 玩家离开
type PlayerLeftPayload struct {
	PlayerID   string `json:"playerId"`
	NewHostID  string `json:"newHostId,omitempty"`
	Eliminated bool   `json:"eliminated"`
}

// RoomClosedPayload 房间关闭
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload 拒绝原因，由网关发给请求方
type ErrorPayload struct {
	Code     apperrors.ErrorCode `json:"code"`
	Category apperrors.Category  `json:"category"`
	Message  string              `json:"message"`
	Details  string              `json:"details,omitempty"`
	Command  CommandType         `json:"command,omitempty"`
}

// ErrorEvent 把拒绝转换为私有事件
func ErrorEvent(roomCode, recipient string, cmd CommandType, err error) Event {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	return Event{
		Type:      EventErrorOccurred,
		RoomCode:  roomCode,
		Recipient: recipient,
		Payload: ErrorPayload{
			Code:     appErr.Code,
			Category: appErr.Category(),
			Message:  appErr.Message,
			Details:  appErr.Details,
			Command:  cmd,
		},
	}
}

// reveal 全部身份
func (s *RoomState) reveal() []RevealEntry {
	out := make([]RevealEntry, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, RevealEntry{
			PlayerID:     p.ID,
			DisplayName:  p.DisplayName,
			Role:         p.Role,
			Word:         p.SecretWord,
			IsEliminated: p.IsEliminated,
		})
	}
	return out
}
