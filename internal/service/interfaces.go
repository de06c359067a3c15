package service

import (
	"context"
	"time"

	"github.com/wfunc/undercover-game/internal/game"
	"github.com/wfunc/undercover-game/internal/models"
	"github.com/wfunc/undercover-game/internal/repository"
)

// RoomService 房间服务接口
type RoomService interface {
	// 建房和加入，返回带令牌的入场凭证
	CreateRoom(ctx context.Context, req *CreateRoomRequest) (*RoomTicket, error)
	JoinRoom(ctx context.Context, code string, req *JoinRoomRequest) (*RoomTicket, error)

	// 查询
	GetRoom(ctx context.Context, code string) (*game.RoomView, error)
	CheckPlayer(ctx context.Context, code, playerID string) error
	ListResults(ctx context.Context, code string, page, pageSize int) ([]*models.GameResult, error)
}

// StatsService 统计服务接口
type StatsService interface {
	GetStats(ctx context.Context, start, end time.Time) (*Stats, error)
}

// RoomRegistry 房间注册表，由 game.Registry 实现
type RoomRegistry interface {
	CreateRoom(ctx context.Context, hostID, displayName, avatarRef string, settings *game.Settings) (*game.Room, []game.Event, error)
	Get(ctx context.Context, code string) (*game.Room, error)
	Count() int
	Codes() []string
}

// TokenIssuer 玩家令牌签发
type TokenIssuer interface {
	GenerateToken(roomCode, playerID, displayName string) (string, time.Time, error)
}

// CreateRoomRequest 建房请求
type CreateRoomRequest struct {
	DisplayName string         `json:"displayName" binding:"required,max=32"`
	AvatarRef   string         `json:"avatarRef" binding:"max=256"`
	Settings    *game.Settings `json:"settings"`
}

// JoinRoomRequest 加入请求
type JoinRoomRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=32"`
	AvatarRef   string `json:"avatarRef" binding:"max=256"`
}

// RoomTicket 入场凭证，客户端用令牌建立WebSocket连接
type RoomTicket struct {
	RoomCode       string        `json:"roomCode"`
	PlayerID       string        `json:"playerId"`
	Token          string        `json:"token"`
	TokenExpiresAt time.Time     `json:"tokenExpiresAt"`
	Room           game.RoomView `json:"room"`
}

// Stats 服务统计
type Stats struct {
	ActiveRooms   int                          `json:"activeRooms"`
	StoredRooms   map[string]int64             `json:"storedRooms"`
	Results       *repository.WinnerStatistics `json:"results"`
	From          time.Time                    `json:"from"`
	To            time.Time                    `json:"to"`
	OnlineClients int                          `json:"onlineClients"`
	OnlineByRoom  map[string]int               `json:"onlineByRoom,omitempty"` // 有在线连接的房间
}
