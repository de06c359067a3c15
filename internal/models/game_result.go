package models

import (
	"time"
)

// GameResult 对局结果记录
type GameResult struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomCode     string    `gorm:"index;size:8;not null" json:"room_code"`
	Winner       string    `gorm:"size:20;index;not null" json:"winner"`
	Rounds       int       `json:"rounds"`
	PlayerCount  int       `json:"player_count"`
	MajorityWord string    `gorm:"size:64" json:"majority_word"`
	MinorityWord string    `gorm:"size:64" json:"minority_word"`
	BlankGuessed bool      `json:"blank_guessed"`
	Roles        string    `gorm:"type:text" json:"roles"` // JSON格式的身份揭晓
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `gorm:"index" json:"finished_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (GameResult) TableName() string {
	return "game_results"
}

// Duration 对局时长
func (r *GameResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&RoomSnapshot{},
		&GameResult{},
	}
}
