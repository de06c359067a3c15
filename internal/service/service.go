package service

import (
	"github.com/wfunc/undercover-game/internal/repository"
	"go.uber.org/zap"
)

// OnlineCounter 在线连接计数，由 websocket.Hub 实现
type OnlineCounter interface {
	GetOnlineCount() int
	RoomOnlineCount(roomCode string) int
}

// Dependencies 服务依赖
type Dependencies struct {
	Registry  RoomRegistry
	Tokens    TokenIssuer
	Results   repository.GameResultRepository
	Snapshots repository.RoomSnapshotRepository
	Online    OnlineCounter
	Logger    *zap.Logger
}

// Services 服务集合
type Services struct {
	Rooms RoomService
	Stats StatsService
}

// NewServices 创建服务集合
func NewServices(deps Dependencies) *Services {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Services{
		Rooms: NewRoomService(deps.Registry, deps.Tokens, deps.Results, log),
		Stats: NewStatsService(deps.Registry, deps.Results, deps.Snapshots, deps.Online),
	}
}
