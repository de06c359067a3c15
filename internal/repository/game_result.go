package repository

import (
	"context"
	"time"

	"github.com/wfunc/undercover-game/internal/models"
	"gorm.io/gorm"
)

// GameResultRepository 对局结果仓储接口
type GameResultRepository interface {
	BaseRepository
	Create(ctx context.Context, result *models.GameResult) error
	FindByRoomCode(ctx context.Context, code string, p *Pagination) ([]*models.GameResult, error)
	GetWinnerStatistics(ctx context.Context, startTime, endTime time.Time) (*WinnerStatistics, error)
}

// WinnerStatistics 阵营胜率统计
type WinnerStatistics struct {
	TotalGames    int64            `json:"total_games"`
	ByWinner      map[string]int64 `json:"by_winner"`
	AverageRounds float64          `json:"average_rounds"`
	BlankGuesses  int64            `json:"blank_guesses"`
}

// gameResultRepo 对局结果仓储实现
type gameResultRepo struct {
	*BaseRepo
}

// NewGameResultRepository 创建对局结果仓储
func NewGameResultRepository(db *gorm.DB) GameResultRepository {
	return &gameResultRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建对局结果
func (r *gameResultRepo) Create(ctx context.Context, result *models.GameResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// FindByRoomCode 查询房间的历史对局
func (r *gameResultRepo) FindByRoomCode(ctx context.Context, code string, p *Pagination) ([]*models.GameResult, error) {
	var results []*models.GameResult

	r.db.WithContext(ctx).
		Model(&models.GameResult{}).
		Where("room_code = ?", code).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Where("room_code = ?", code).
		Order("finished_at desc").
		Scopes(Paginate(p)).
		Find(&results).Error

	return results, err
}

// GetWinnerStatistics 统计时间段内各阵营的胜场
func (r *gameResultRepo) GetWinnerStatistics(ctx context.Context, startTime, endTime time.Time) (*WinnerStatistics, error) {
	stats := &WinnerStatistics{ByWinner: make(map[string]int64)}

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.GameResult{}).
			Where("finished_at BETWEEN ? AND ?", startTime, endTime)
	}

	var rows []struct {
		Winner string
		Count  int64
	}
	if err := base().Select("winner, count(*) as count").Group("winner").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByWinner[row.Winner] = row.Count
		stats.TotalGames += row.Count
	}

	if stats.TotalGames > 0 {
		var avg struct{ AvgRounds float64 }
		if err := base().Select("AVG(rounds) as avg_rounds").Scan(&avg).Error; err != nil {
			return nil, err
		}
		stats.AverageRounds = avg.AvgRounds
	}

	if err := base().Where("blank_guessed = ?", true).Count(&stats.BlankGuesses).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
