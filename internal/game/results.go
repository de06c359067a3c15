package game

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/models"
	"github.com/wfunc/undercover-game/internal/repository"
)

// GameSummary 一局结束后的摘要
type GameSummary struct {
	RoomCode     string        `json:"roomCode"`
	GameNumber   int           `json:"gameNumber"`
	Winner       Winner        `json:"winner"`
	Rounds       int           `json:"rounds"`
	PlayerCount  int           `json:"playerCount"`
	Words        WordPair      `json:"words"`
	BlankGuessed bool          `json:"blankGuessed"`
	Reveal       []RevealEntry `json:"reveal"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

// ResultRecorder 对局结果记录，失败不影响游戏
type ResultRecorder interface {
	Record(ctx context.Context, summary GameSummary) error
}

func summarize(s *RoomState, now time.Time) GameSummary {
	return GameSummary{
		RoomCode:     s.Code,
		GameNumber:   s.GameNumber,
		Winner:       s.Winner,
		Rounds:       len(s.Rounds),
		PlayerCount:  len(s.Players),
		Words:        s.Words,
		BlankGuessed: s.BlankGuessed,
		Reveal:       s.reveal(),
		StartedAt:    s.StartedAt,
		FinishedAt:   now,
	}
}

// DatabaseResultRecorder 把对局结果写入 game_results 表
type DatabaseResultRecorder struct {
	repo repository.GameResultRepository
}

// NewDatabaseResultRecorder 创建结果记录器
func NewDatabaseResultRecorder(repo repository.GameResultRepository) *DatabaseResultRecorder {
	return &DatabaseResultRecorder{repo: repo}
}

// Record 写入一条记录
func (r *DatabaseResultRecorder) Record(ctx context.Context, summary GameSummary) error {
	roles, err := json.Marshal(summary.Reveal)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDataIntegrity, "序列化身份失败")
	}

	result := &models.GameResult{
		RoomCode:     summary.RoomCode,
		Winner:       string(summary.Winner),
		Rounds:       summary.Rounds,
		PlayerCount:  summary.PlayerCount,
		MajorityWord: summary.Words.Majority,
		MinorityWord: summary.Words.Minority,
		BlankGuessed: summary.BlankGuessed,
		Roles:        string(roles),
		StartedAt:    summary.StartedAt.UTC(),
		FinishedAt:   summary.FinishedAt.UTC(),
	}
	if err := r.repo.Create(ctx, result); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "保存对局结果失败")
	}
	return nil
}
