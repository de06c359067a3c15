package service

import (
	"context"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/repository"
)

// statsService 统计服务实现
type statsService struct {
	registry  RoomRegistry
	results   repository.GameResultRepository
	snapshots repository.RoomSnapshotRepository
	online    OnlineCounter
}

// NewStatsService 创建统计服务，存储相关的依赖可以为空
func NewStatsService(registry RoomRegistry, results repository.GameResultRepository, snapshots repository.RoomSnapshotRepository, online OnlineCounter) StatsService {
	return &statsService{
		registry:  registry,
		results:   results,
		snapshots: snapshots,
		online:    online,
	}
}

// GetStats 统计在线房间和时间段内的对局结果
func (s *statsService) GetStats(ctx context.Context, start, end time.Time) (*Stats, error) {
	if end.Before(start) {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "结束时间早于开始时间")
	}

	stats := &Stats{
		ActiveRooms: s.registry.Count(),
		From:        start,
		To:          end,
	}
	if s.online != nil {
		stats.OnlineClients = s.online.GetOnlineCount()
		for _, code := range s.registry.Codes() {
			if n := s.online.RoomOnlineCount(code); n > 0 {
				if stats.OnlineByRoom == nil {
					stats.OnlineByRoom = make(map[string]int)
				}
				stats.OnlineByRoom[code] = n
			}
		}
	}

	if s.snapshots != nil {
		counts, err := s.snapshots.CountByStatus(ctx)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
		}
		stats.StoredRooms = counts
	}

	if s.results != nil {
		results, err := s.results.GetWinnerStatistics(ctx, start, end)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
		}
		stats.Results = results
	}

	return stats, nil
}
