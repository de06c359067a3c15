package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/game"
	"github.com/wfunc/undercover-game/internal/models"
	"github.com/wfunc/undercover-game/internal/repository"
	"go.uber.org/zap"
)

// roomService 房间服务实现
type roomService struct {
	registry RoomRegistry
	tokens   TokenIssuer
	results  repository.GameResultRepository
	log      *zap.Logger
}

// NewRoomService 创建房间服务
func NewRoomService(registry RoomRegistry, tokens TokenIssuer, results repository.GameResultRepository, log *zap.Logger) RoomService {
	return &roomService{
		registry: registry,
		tokens:   tokens,
		results:  results,
		log:      log,
	}
}

// CreateRoom 创建房间，请求方成为房主
func (s *roomService) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*RoomTicket, error) {
	playerID := uuid.New().String()

	room, _, err := s.registry.CreateRoom(ctx, playerID, req.DisplayName, req.AvatarRef, req.Settings)
	if err != nil {
		return nil, err
	}

	s.log.Info("房间已创建",
		zap.String("room", room.Code()),
		zap.String("host_id", playerID))

	return s.ticket(room, playerID, req.DisplayName)
}

// JoinRoom 加入已有房间
func (s *roomService) JoinRoom(ctx context.Context, code string, req *JoinRoomRequest) (*RoomTicket, error) {
	room, err := s.registry.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	playerID := uuid.New().String()
	if _, err := room.Join(ctx, playerID, req.DisplayName, req.AvatarRef); err != nil {
		return nil, err
	}

	return s.ticket(room, playerID, req.DisplayName)
}

func (s *roomService) ticket(room *game.Room, playerID, displayName string) (*RoomTicket, error) {
	token, expiresAt, err := s.tokens.GenerateToken(room.Code(), playerID, strings.TrimSpace(displayName))
	if err != nil {
		return nil, err
	}
	return &RoomTicket{
		RoomCode:       room.Code(),
		PlayerID:       playerID,
		Token:          token,
		TokenExpiresAt: expiresAt,
		Room:           room.View(),
	}, nil
}

// GetRoom 房间公开快照
func (s *roomService) GetRoom(ctx context.Context, code string) (*game.RoomView, error) {
	room, err := s.registry.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	view := room.View()
	return &view, nil
}

// CheckPlayer 确认玩家仍在房间名单中
func (s *roomService) CheckPlayer(ctx context.Context, code, playerID string) error {
	room, err := s.registry.Get(ctx, code)
	if err != nil {
		return err
	}
	if !room.HasPlayer(playerID) {
		return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
	}
	return nil
}

// ListResults 房间的历史对局
func (s *roomService) ListResults(ctx context.Context, code string, page, pageSize int) ([]*models.GameResult, error) {
	if s.results == nil {
		return nil, apperrors.New(apperrors.ErrStorageUnavailable, "未启用对局记录")
	}
	results, err := s.results.FindByRoomCode(ctx, strings.ToUpper(strings.TrimSpace(code)), repository.NewPagination(page, pageSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return results, nil
}
