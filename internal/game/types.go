package game

import (
	"strings"
	"time"
)

// Role 玩家身份
type Role string

const (
	RoleUnassigned Role = ""
	RoleMajority   Role = "majority" // 平民
	RoleMinority   Role = "minority" // 卧底
	RoleBlank      Role = "blank"    // 白板
)

// RoomStatus 房间生命周期状态
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in_progress"
	StatusCompleted  RoomStatus = "completed"
)

// Phase 对局内的细分阶段，仅在进行中有意义
type Phase string

const (
	PhaseNone        Phase = "none"
	PhaseDescription Phase = "description" // 轮流描述
	PhaseDiscussion  Phase = "discussion"  // 自由讨论
	PhaseVoting      Phase = "voting"      // 投票
	PhaseElimination Phase = "elimination" // 出局结算
	PhaseGameOver    Phase = "game_over"
)

// Winner 获胜阵营
type Winner string

const (
	WinnerNone     Winner = "none"
	WinnerMajority Winner = "majority"
	WinnerMinority Winner = "minority"
	WinnerBlank    Winner = "blank"
)

// 房间设置边界
const (
	MinPlayers       = 3
	MaxPlayersLimit  = 20
	MinRoundSeconds  = 10
	MaxRoundSeconds  = 300
	DefaultClueLimit = 64
)

// WordPair 一局的词语对
type WordPair struct {
	Majority string `json:"majority"`
	Minority string `json:"minority"`
}

// Key 词语对的唯一键（忽略大小写）
func (p WordPair) Key() string {
	return strings.ToLower(p.Majority) + "|" + strings.ToLower(p.Minority)
}

// IsZero 是否为空
func (p WordPair) IsZero() bool {
	return p.Majority == "" && p.Minority == ""
}

// Settings 房间设置
type Settings struct {
	MaxPlayers        int       `json:"maxPlayers"`
	RoundTimeSeconds  int       `json:"roundTimeSeconds"`
	WordPack          string    `json:"wordPack"`
	MinorityCount     int       `json:"minorityCount"`
	BlankCount        int       `json:"blankCount"`
	CustomWords       *WordPair `json:"customWords,omitempty"`
	DiscussionEnabled bool      `json:"discussionEnabled"`
}

// RoundTime 每位玩家的发言时限
func (s Settings) RoundTime() time.Duration {
	return time.Duration(s.RoundTimeSeconds) * time.Second
}

// Player 房间成员
type Player struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	AvatarRef    string    `json:"avatarRef,omitempty"`
	IsReady      bool      `json:"isReady"`
	Role         Role      `json:"role,omitempty"`
	SecretWord   string    `json:"secretWord,omitempty"`
	IsEliminated bool      `json:"isEliminated"`
	Connected    bool      `json:"connected"`
	Left         bool      `json:"left"` // 对局中途离开，重置时清除
	JoinedAt     time.Time `json:"joinedAt"`
}

// Clue 一条描述
type Clue struct {
	PlayerID string    `json:"playerId"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// EliminatedSnapshot 出局玩家快照
type EliminatedSnapshot struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	SecretWord  string `json:"secretWord,omitempty"`
	Forced      bool   `json:"forced,omitempty"` // 离开房间导致的出局
}

// Round 一轮描述+投票
type Round struct {
	Number        int                 `json:"number"`
	SpeakingOrder []string            `json:"speakingOrder"`
	TurnIndex     int                 `json:"turnIndex"`
	Clues         []Clue              `json:"clues"`
	Skipped       []string            `json:"skipped,omitempty"`
	Votes         map[string]string   `json:"votes"`
	Tally         map[string]int      `json:"tally,omitempty"`
	Eliminated    *EliminatedSnapshot `json:"eliminated,omitempty"`
}

// CurrentSpeaker 当前发言者，发言结束返回空
func (r *Round) CurrentSpeaker() string {
	if r == nil || r.TurnIndex >= len(r.SpeakingOrder) {
		return ""
	}
	return r.SpeakingOrder[r.TurnIndex]
}

// SpeakingDone 本轮发言是否结束
func (r *Round) SpeakingDone() bool {
	return r.TurnIndex >= len(r.SpeakingOrder)
}

// GuessWindow 白板出局后的猜词窗口
type GuessWindow struct {
	PlayerID string    `json:"playerId"`
	Round    int       `json:"round"`
	Deadline time.Time `json:"deadline"`
}

// RoomState 房间完整状态，可序列化持久化
type RoomState struct {
	Code      string     `json:"code"`
	HostID    string     `json:"hostId"`
	Status    RoomStatus `json:"status"`
	Phase     Phase      `json:"phase"`
	Settings  Settings   `json:"settings"`
	Players   []Player   `json:"players"`
	Rounds    []Round    `json:"rounds"`
	Words     WordPair   `json:"secretWords"`
	Winner    Winner     `json:"winner"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Version   int64      `json:"version"`

	GameNumber   int          `json:"gameNumber"`
	StartedAt    time.Time    `json:"startedAt,omitempty"`
	UsedPairs    []string     `json:"usedPairs,omitempty"`
	UsedClues    []string     `json:"usedClues,omitempty"`
	VoteRound    int          `json:"voteRound,omitempty"`
	Candidates   []string     `json:"candidates,omitempty"` // 重投时限定的候选人
	Deadline     time.Time    `json:"deadline,omitempty"`   // 当前发言或讨论的截止时间
	Guess        *GuessWindow `json:"guess,omitempty"`
	BlankGuessed bool         `json:"blankGuessed,omitempty"`
}

// Clone 深拷贝，命令在副本上执行，持久化成功后才替换
func (s *RoomState) Clone() *RoomState {
	c := *s
	if s.Settings.CustomWords != nil {
		w := *s.Settings.CustomWords
		c.Settings.CustomWords = &w
	}
	c.Players = append([]Player(nil), s.Players...)
	c.UsedPairs = append([]string(nil), s.UsedPairs...)
	c.UsedClues = append([]string(nil), s.UsedClues...)
	c.Candidates = append([]string(nil), s.Candidates...)
	if s.Guess != nil {
		g := *s.Guess
		c.Guess = &g
	}

	c.Rounds = make([]Round, len(s.Rounds))
	for i, r := range s.Rounds {
		nr := r
		nr.SpeakingOrder = append([]string(nil), r.SpeakingOrder...)
		nr.Clues = append([]Clue(nil), r.Clues...)
		nr.Skipped = append([]string(nil), r.Skipped...)
		nr.Votes = make(map[string]string, len(r.Votes))
		for k, v := range r.Votes {
			nr.Votes[k] = v
		}
		if r.Tally != nil {
			nr.Tally = make(map[string]int, len(r.Tally))
			for k, v := range r.Tally {
				nr.Tally[k] = v
			}
		}
		if r.Eliminated != nil {
			e := *r.Eliminated
			nr.Eliminated = &e
		}
		c.Rounds[i] = nr
	}
	return &c
}

// Player 按ID查找玩家
func (s *RoomState) Player(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// CurrentRound 当前轮次
func (s *RoomState) CurrentRound() *Round {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// ActivePlayers 未出局的玩家，保持加入顺序
func (s *RoomState) ActivePlayers() []*Player {
	var active []*Player
	for i := range s.Players {
		if !s.Players[i].IsEliminated {
			active = append(active, &s.Players[i])
		}
	}
	return active
}

// ActiveIDs 未出局玩家ID
func (s *RoomState) ActiveIDs() []string {
	active := s.ActivePlayers()
	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	return ids
}

// PresentPlayers 仍在房间内的玩家
func (s *RoomState) PresentPlayers() []*Player {
	var present []*Player
	for i := range s.Players {
		if !s.Players[i].Left {
			present = append(present, &s.Players[i])
		}
	}
	return present
}

// RoleCount 统计未出局玩家的身份分布
func (s *RoomState) RoleCount() RoleCounts {
	var rc RoleCounts
	for _, p := range s.ActivePlayers() {
		switch p.Role {
		case RoleMajority:
			rc.Majority++
		case RoleMinority:
			rc.Minority++
		case RoleBlank:
			rc.Blank++
		}
	}
	return rc
}

// IsHost 是否为房主
func (s *RoomState) IsHost(id string) bool {
	return s.HostID == id
}

// removePlayer 从名单中移除
func (s *RoomState) removePlayer(id string) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			return
		}
	}
}

// normalizeText 去空白并转小写，用于比较描述和猜词
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
